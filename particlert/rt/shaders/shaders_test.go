package shaders

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/gogpu/naga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelsDeclareWorkgroupSize(t *testing.T) {
	for label, src := range All() {
		assert.Contains(t, src, "@workgroup_size(64)", label)
		assert.Contains(t, src, "fn main(", label)
		assert.Contains(t, src, "struct Particle", label)
	}
}

func TestKernelsBindOnlyWhatTheyUse(t *testing.T) {
	assert.NotContains(t, assignCellWGSL, "@binding(2)")
	assert.NotContains(t, bitonicSortWGSL, "@binding(3)")
	assert.NotContains(t, bitonicSortWGSL, "@binding(4)")
	assert.NotContains(t, buildGridWGSL, "@binding(4)")
	assert.NotContains(t, collideAllWGSL, "@binding(3)")
	assert.NotContains(t, collideGridWGSL, "@binding(2)")
}

func TestKernelsCompile(t *testing.T) {
	for label, src := range All() {
		t.Run(label, func(t *testing.T) {
			spirv, err := naga.Compile(src)
			if err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("naga feature not yet implemented: %v", err)
				}
				if strings.Contains(msg, "lowering error") {
					t.Skipf("naga lowering limitation: %v", err)
				}
				require.NoError(t, err)
			}
			require.GreaterOrEqual(t, len(spirv), 4)
			assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(spirv[:4]), "SPIR-V magic")
		})
	}
}

func TestValidate(t *testing.T) {
	for label, src := range All() {
		assert.NoError(t, Validate(label, src), label)
	}

	broken := CommonWGSL + "\nfn main( {\n"
	err := Validate("broken", broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shader broken")
	// cached result, same answer
	assert.Error(t, Validate("broken again", broken))

	assert.Error(t, Validate("undeclared", "fn f() -> u32 { return missing; }"))
}
