package vm

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/vine/pkg/bytecode"
)

func TestProfilerCountsCalls(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profile = true
	m := load(t, fmt.Sprintf(recursiveFib, 10), nil, cfg)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	p := m.Profiler()
	if p == nil {
		t.Fatal("Profiler is nil with Profile set")
	}
	if p.Total() != m.Steps() {
		t.Errorf("Total = %d, want %d steps", p.Total(), m.Steps())
	}
	calls := p.Calls(m.Program())
	if len(calls) != 1 || calls[0].Name != "fib" || calls[0].Count != 177 {
		t.Errorf("calls = %+v, want 177 calls of fib", calls)
	}

	ops := p.Instructions()
	for i := 1; i < len(ops); i++ {
		if ops[i].Count > ops[i-1].Count {
			t.Fatalf("Instructions not sorted: %+v", ops)
		}
	}
	var sb strings.Builder
	p.Report(&sb, m.Program(), 3)
	if !strings.Contains(sb.String(), "fib") || strings.Count(sb.String(), "%") != 3 {
		t.Errorf("Report:\n%s", sb.String())
	}
}

func TestProfilerOffByDefault(t *testing.T) {
	m := mustRun(t, "required registers\nfn entry\n    ret\n")
	if m.Profiler() != nil {
		t.Error("Profiler allocated without Profile")
	}
	if got := NewProfiler().Calls(&bytecode.Program{}); len(got) != 0 {
		t.Errorf("empty profiler calls = %v", got)
	}
}
