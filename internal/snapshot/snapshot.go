// Package snapshot passively tracks every tunable setting of a fixed set
// of hardware components, so acquisition results can be stamped with the
// settings that produced them.
package snapshot

import (
	"sync"

	"github.com/lumascope/acquirer/internal/model"
)

// Settings of these names never change what an acquisition produces and
// would only bloat the snapshot.
var ignored = map[string]struct{}{
	"children":     {},
	"dependencies": {},
	"affects":      {},
	"alive":        {},
	"state":        {},
	"ghosts":       {},
}

// observer routes one setting's change notifications into the collector.
// It carries the component and setting names as fields, the notification
// callback itself receives only the new value.
type observer struct {
	c         *Collector
	component string
	setting   string
}

func (o *observer) update(v any) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	vu := o.c.settings[o.component][o.setting]
	vu[0] = v
	o.c.settings[o.component][o.setting] = vu
}

// Collector holds the live settings of the observed components. The map is
// updated from hardware notification goroutines, reads and writes go
// through one mutex.
type Collector struct {
	mu       sync.Mutex
	settings model.Settings
	unsubs   []func()
}

// NewCollector records the current value and unit of every setting of the
// given components and subscribes for changes. Call Close once the
// acquisition is over.
func NewCollector(components ...model.Component) *Collector {
	c := &Collector{
		settings: make(model.Settings, len(components)),
	}
	for _, comp := range components {
		vas := comp.VAs()
		recorded := make(map[string][2]any, len(vas))
		c.settings[comp.Name()] = recorded
		for name, va := range vas {
			if _, skip := ignored[name]; skip {
				continue
			}
			recorded[name] = [2]any{va.Value(), va.Unit()}
			o := &observer{c: c, component: comp.Name(), setting: name}
			c.unsubs = append(c.unsubs, va.Subscribe(o.update))
		}
	}
	return c
}

// GetAllSettings returns a deep copy of the current settings, safe to
// stash inside result metadata without aliasing live state.
func (c *Collector) GetAllSettings() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CopySettings(c.settings)
}

// Close unsubscribes from every observed setting.
func (c *Collector) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
