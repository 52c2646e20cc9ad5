package migrate

import (
	"regexp"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/cluster"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

// Filter admits an event iff every configured predicate admits it :
// db membership, type-tag membership, and any-of key regexes. An event
// without a type tag is not tested against the type set, and one without a
// key (nor a key extractable from its argv) is not tested against the regexes.
type Filter struct {
	dbs      map[int]struct{}
	types    map[string]struct{}
	patterns []*regexp.Regexp
}

func NewFilter(dbs []int, types []string, keyPatterns []string) (*Filter, error) {
	f := &Filter{}
	if len(dbs) > 0 {
		f.dbs = util.SliceToMap(dbs)
	}
	if len(types) > 0 {
		f.types = util.SliceToMap(types)
	}
	for _, p := range keyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Errorf("%w : bad key pattern %q : %v", errors.ErrConfig, p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Pass reports whether the event survives the filter. Markers
// (BeginRdb/EndRdb) always pass.
func (f *Filter) Pass(e *Event) bool {
	if f == nil {
		return true
	}
	switch e.Kind {
	case EventBeginRdb, EventEndRdb:
		return true
	}

	if f.dbs != nil {
		if _, ok := f.dbs[e.Db]; !ok {
			return false
		}
	}
	if f.types != nil && e.Type != "" {
		if _, ok := f.types[e.Type]; !ok {
			return false
		}
	}
	if len(f.patterns) > 0 {
		key := e.Key
		if key == nil && len(e.Argv) > 0 {
			keys, err := cluster.CommandKeys(e.Argv)
			if err == nil && len(keys) > 0 {
				key = keys[0]
			}
		}
		if key != nil && !f.matchKey(key) {
			return false
		}
	}
	return true
}

func (f *Filter) matchKey(key []byte) bool {
	for _, re := range f.patterns {
		if re.Match(key) {
			return true
		}
	}
	return false
}
