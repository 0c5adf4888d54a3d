package shaders

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/naga"
)

//go:embed common.wgsl
var CommonWGSL string

//go:embed assign_cell.wgsl
var assignCellWGSL string

//go:embed bitonic_sort.wgsl
var bitonicSortWGSL string

//go:embed build_grid.wgsl
var buildGridWGSL string

//go:embed collide_grid.wgsl
var collideGridWGSL string

//go:embed collide_all.wgsl
var collideAllWGSL string

// Kernel sources are the shared declarations followed by the kernel body, so each
// one is a complete module.

func AssignCellWGSL() string  { return CommonWGSL + assignCellWGSL }
func BitonicSortWGSL() string { return CommonWGSL + bitonicSortWGSL }
func BuildGridWGSL() string   { return CommonWGSL + buildGridWGSL }
func CollideGridWGSL() string { return CommonWGSL + collideGridWGSL }
func CollideAllWGSL() string  { return CommonWGSL + collideAllWGSL }

// All returns every kernel module keyed by label.
func All() map[string]string {
	return map[string]string{
		"assign_cell":  AssignCellWGSL(),
		"bitonic_sort": BitonicSortWGSL(),
		"build_grid":   BuildGridWGSL(),
		"collide_grid": CollideGridWGSL(),
		"collide_all":  CollideAllWGSL(),
	}
}

var validated sync.Map // source -> error

// Validate parses src, lowers it to naga IR and validates the IR, the checks a device
// runs before it builds a pipeline. Constructs naga's frontend does not cover yet are
// not source errors and pass. Results are cached per source.
func Validate(label, src string) error {
	cached, ok := validated.Load(src)
	if !ok {
		cached = check(src)
		validated.Store(src, cached)
	}
	if err, _ := cached.(error); err != nil {
		return fmt.Errorf("shader %s: %w", label, err)
	}
	return nil
}

func check(src string) error {
	ast, err := naga.Parse(src)
	if err != nil {
		return err
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		if isFrontendGap(err) {
			return nil
		}
		return fmt.Errorf("lowering: %w", err)
	}
	issues, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	if len(issues) > 0 {
		return fmt.Errorf("validation: %w", &issues[0])
	}
	return nil
}

func isFrontendGap(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unsupported") || strings.Contains(msg, "not yet supported")
}
