package models

import (
	"fmt"
	"slices"
)

// Command is the kind of change a [SyncOperation] asks the server to make.
type Command int

const (
	CommandCreate Command = iota
	CommandUpdate
	CommandDelete
)

func (c Command) String() string {
	switch c {
	case CommandCreate:
		return "create"
	case CommandUpdate:
		return "update"
	case CommandDelete:
		return "delete"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Object types understood by the remote service.
const (
	ObjectPlaylist      = "playlist"
	ObjectConfiguration = "configuration"
	ObjectDevice        = "device"
	ObjectLink          = "link"
	ObjectListen        = "listen"
)

// SongsKey is the [Params] key holding a playlist's [SongsDelta].
const SongsKey = "songs"

// SyncOperation is a queued change bound for the remote service.
//
// ObjectID is 0 for creates. Ref carries the local key of the object so a create response can be written back.
type SyncOperation struct {
	Command    Command
	ObjectType string
	ObjectID   uint
	Ref        string
	Params     *Params
}

// NewSyncOperation creates an operation with empty params.
func NewSyncOperation(cmd Command, objectType string, objectID uint) *SyncOperation {
	return &SyncOperation{Command: cmd, ObjectType: objectType, ObjectID: objectID, Params: NewParams()}
}

// Coalesces reports whether other is an update of the same object and can be merged into op.
func (op *SyncOperation) Coalesces(other *SyncOperation) bool {
	return op.Command == CommandUpdate && other.Command == CommandUpdate &&
		op.ObjectType == other.ObjectType && op.ObjectID == other.ObjectID && op.ObjectID != 0
}

// Songs returns the songs delta of the operation, or nil.
func (op *SyncOperation) Songs() *SongsDelta {
	if op.Params == nil {
		return nil
	}
	d, _ := op.Params.Get(SongsKey).(*SongsDelta)
	return d
}

func (op *SyncOperation) String() string {
	return fmt.Sprintf("%s %s/%d", op.Command, op.ObjectType, op.ObjectID)
}

// Params is an insertion-ordered key/value map.
//
// Setting an existing key overwrites its value in place and keeps its position.
type Params struct {
	keys   []string
	values map[string]any
}

// NewParams creates a [Params] from alternating key/value pairs.
func NewParams(kv ...any) *Params {
	p := &Params{values: map[string]any{}}
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		p.Set(k, kv[i+1])
	}
	return p
}

// Set stores v under k.
func (p *Params) Set(k string, v any) *Params {
	if _, ok := p.values[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.values[k] = v
	return p
}

// Get returns the value stored under k or nil.
func (p *Params) Get(k string) any {
	return p.values[k]
}

// Has reports whether k is set.
func (p *Params) Has(k string) bool {
	_, ok := p.values[k]
	return ok
}

// Delete removes k.
func (p *Params) Delete(k string) {
	if _, ok := p.values[k]; !ok {
		return
	}
	delete(p.values, k)
	p.keys = slices.DeleteFunc(p.keys, func(s string) bool { return s == k })
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	return slices.Clone(p.keys)
}

// Len returns the number of keys.
func (p *Params) Len() int {
	return len(p.keys)
}

// Merge folds other into p, field by field, with other winning.
// Song deltas are combined rather than replaced.
func (p *Params) Merge(other *Params) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		v := other.values[k]
		if k == SongsKey {
			incoming, ok := v.(*SongsDelta)
			existing, ok2 := p.values[k].(*SongsDelta)
			if ok && ok2 {
				existing.Merge(incoming)
				continue
			}
			if ok {
				v = incoming.Clone()
			}
		}
		p.Set(k, v)
	}
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	c := NewParams()
	for _, k := range p.keys {
		v := p.values[k]
		if d, ok := v.(*SongsDelta); ok {
			v = d.Clone()
		}
		c.Set(k, v)
	}
	return c
}

// Scalars returns every key/value pair except the songs delta, in order.
func (p *Params) Scalars() [][2]any {
	var out [][2]any
	for _, k := range p.keys {
		if k == SongsKey {
			continue
		}
		out = append(out, [2]any{k, p.values[k]})
	}
	return out
}

// SongsDelta is the bulk track change of a playlist update.
type SongsDelta struct {
	Added   []Track `json:"added"`
	Removed []Track `json:"removed"`
}

// Add records tracks as added. Adding a path cancels a pending removal of it.
func (d *SongsDelta) Add(tracks ...Track) {
	d.Removed, _ = RemovePaths(d.Removed, tracks...)
	d.Added, _ = AppendUnique(d.Added, tracks...)
}

// Remove records tracks as removed. Removing a path that is pending as added cancels the add instead.
func (d *SongsDelta) Remove(tracks ...Track) {
	for _, t := range tracks {
		if ContainsPath(d.Added, t.Path) {
			d.Added, _ = RemovePaths(d.Added, t)
			continue
		}
		d.Removed, _ = AppendUnique(d.Removed, t)
	}
}

// Merge applies other's additions and removals on top of d.
func (d *SongsDelta) Merge(other *SongsDelta) {
	if other == nil {
		return
	}
	d.Add(other.Added...)
	d.Remove(other.Removed...)
}

// Empty reports whether the delta changes nothing.
func (d *SongsDelta) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0)
}

// Clone returns a deep copy of d.
func (d *SongsDelta) Clone() *SongsDelta {
	return &SongsDelta{Added: slices.Clone(d.Added), Removed: slices.Clone(d.Removed)}
}
