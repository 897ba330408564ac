package dom

import (
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/domcore/pkg/metrics"
)

func TestDirectoryScenario(t *testing.T) {
	d := NewDirectory(nil)
	m := &Manager{id: 7}

	d.Insert(m)
	got, ok := d.Find(7)
	if !ok || got != m {
		t.Fatalf("Find(7) = %v, %v; want the inserted manager", got, ok)
	}

	if !d.Erase(7) {
		t.Error("Erase(7) should report a removal")
	}
	if _, ok := d.Find(7); ok {
		t.Error("Find(7) after Erase should be absent")
	}
	if d.Erase(7) {
		t.Error("erasing a missing entry should be a no-op")
	}
}

func TestDirectoryInsertReplaces(t *testing.T) {
	d := NewDirectory(nil)
	a := &Manager{id: 3}
	b := &Manager{id: 3}

	d.Insert(a)
	d.Insert(b)
	if got, _ := d.Find(3); got != b {
		t.Error("Insert should replace the entry under the same id")
	}
	if d.EraseManager(a) {
		t.Error("EraseManager with a stale instance should not remove the current entry")
	}
	if !d.EraseManager(b) {
		t.Error("EraseManager(current) should remove it")
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d, want 0", d.Len())
	}
}

func TestDirectoryWithManagers(t *testing.T) {
	reg := prometheus.NewRegistry()
	mtr := metrics.New(metrics.WithRegistry(reg))
	d := NewDirectory(mtr)

	a := NewManager(1, WithLogger(quietLogger()), WithDirectory(d))
	b := NewManager(2, WithLogger(quietLogger()), WithDirectory(d))

	want := []int32{a.ID(), b.ID()}
	slices.Sort(want)
	if got := d.IDs(); !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
	if got := gaugeValue(t, reg, "domcore_active_managers"); got != 2 {
		t.Errorf("active managers gauge = %v, want 2", got)
	}

	a.Close()
	a.Close()
	if _, ok := d.Find(a.ID()); ok {
		t.Error("Close should erase the manager from its directory")
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}
	b.Close()
	if got := gaugeValue(t, reg, "domcore_active_managers"); got != 0 {
		t.Errorf("active managers gauge = %v, want 0", got)
	}
}

func TestDirectoryConcurrentAccess(t *testing.T) {
	d := NewDirectory(nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			m := &Manager{id: id}
			d.Insert(m)
			if got, ok := d.Find(id); !ok || got != m {
				t.Errorf("Find(%d) missing after Insert", id)
			}
			d.Erase(id)
		}(int32(i))
	}
	wg.Wait()
	if d.Len() != 0 {
		t.Errorf("Len() = %d, want 0", d.Len())
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
