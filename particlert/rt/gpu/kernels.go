package gpu

import (
	"github.com/gekko3d/collide/particlert/rt/shaders"
)

func AssignCellSource() KernelSource {
	return KernelSource{
		Label:      "assign_cell",
		EntryPoint: "main",
		WGSL:       shaders.AssignCellWGSL(),
		Bindings: []BindingDecl{
			{Buffer: BufferParams, Access: AccessRead},
			{Buffer: BufferParticles, Access: AccessReadWrite},
			{Buffer: BufferCellIndex, Access: AccessReadWrite},
			{Buffer: BufferResult, Access: AccessRead},
		},
		Host: assignCellHost,
	}
}

func SortSource() KernelSource {
	return KernelSource{
		Label:      "bitonic_sort",
		EntryPoint: "main",
		WGSL:       shaders.BitonicSortWGSL(),
		Bindings: []BindingDecl{
			{Buffer: BufferParams, Access: AccessRead},
			{Buffer: BufferParticles, Access: AccessReadWrite},
			{Buffer: BufferSortParams, Access: AccessRead},
		},
		Host: sortHost,
	}
}

func BuildGridSource() KernelSource {
	return KernelSource{
		Label:      "build_grid",
		EntryPoint: "main",
		WGSL:       shaders.BuildGridWGSL(),
		Bindings: []BindingDecl{
			{Buffer: BufferParams, Access: AccessRead},
			{Buffer: BufferParticles, Access: AccessRead},
			{Buffer: BufferCellIndex, Access: AccessReadWrite},
		},
		Host: buildGridHost,
	}
}

func CollideGridSource() KernelSource {
	return KernelSource{
		Label:      "collide_grid",
		EntryPoint: "main",
		WGSL:       shaders.CollideGridWGSL(),
		Bindings: []BindingDecl{
			{Buffer: BufferParams, Access: AccessRead},
			{Buffer: BufferParticles, Access: AccessRead},
			{Buffer: BufferCellIndex, Access: AccessRead},
			{Buffer: BufferResult, Access: AccessReadWrite},
		},
		Host: collideGridHost,
	}
}

func CollideAllSource() KernelSource {
	return KernelSource{
		Label:      "collide_all",
		EntryPoint: "main",
		WGSL:       shaders.CollideAllWGSL(),
		Bindings: []BindingDecl{
			{Buffer: BufferParams, Access: AccessRead},
			{Buffer: BufferParticles, Access: AccessRead},
			{Buffer: BufferResult, Access: AccessReadWrite},
		},
		Host: collideAllHost,
	}
}
