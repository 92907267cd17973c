package jit

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestArmSemantics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ARM Semantics Suite")
}
