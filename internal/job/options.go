package job

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Options is an ordered set of "--key value" overrides attached to a node.
// An empty value renders as a bare flag.
type Options struct {
	keys []string
	vals map[string]string
}

// Set validates key and stores value, replacing an earlier value for the
// same key without changing its position.
func (o *Options) Set(key, value string) error {
	if err := ValidateOptionKey(key); err != nil {
		return err
	}
	if o.vals == nil {
		o.vals = make(map[string]string)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = value
	return nil
}

// Get returns the value stored for key.
func (o Options) Get(key string) (string, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o Options) Keys() []string {
	return slices.Clone(o.keys)
}

// Len returns the number of options.
func (o Options) Len() int {
	return len(o.keys)
}

// Clone returns an independent copy.
func (o Options) Clone() Options {
	c := Options{keys: slices.Clone(o.keys)}
	if o.vals != nil {
		c.vals = make(map[string]string, len(o.vals))
		for k, v := range o.vals {
			c.vals[k] = v
		}
	}
	return c
}

// Merge returns a copy of o with every option of other applied on top.
func (o Options) Merge(other Options) Options {
	c := o.Clone()
	for _, k := range other.keys {
		// Keys in other were validated by Set.
		_ = c.Set(k, other.vals[k])
	}
	return c
}

// ValidateOptionKey rejects keys that cannot be rendered as a long option.
func ValidateOptionKey(key string) error {
	if key == "" {
		return fmt.Errorf("option key is empty")
	}
	if strings.HasPrefix(key, "-") {
		return fmt.Errorf("option key %q must not start with '-'", key)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("option key %q contains whitespace", key)
	}
	return nil
}

// reserved lists, per kind, the option keys a node sets itself. Keys ending
// in '*' match a per-instrument prefix such as "H1-cache".
var reserved = map[Kind][]string{
	KindEngine: {
		"ifo", "outfile", "randomseed", "psdstart", "psdlength", "seglen",
		"trigtime", "event", "inj", "snrpath", "srate", "dataseed", "trigSNR",
		"glob-frame-data", "roqtime_steps", "roqnodes",
		"*-cache", "*-channel", "*-flow", "*-fhigh", "*-psd", "*-timeslide", "*-roqweights",
	},
	KindMerge: {"pos", "headers"},
	KindReport: {
		"outpath", "inj", "eventnum", "snr", "bsn", "bci", "header", "lalinfmcmc", "trig",
	},
}

// CheckOption reports whether key may be attached to a node of kind.
func CheckOption(kind Kind, key string) error {
	if err := ValidateOptionKey(key); err != nil {
		return err
	}
	words, ok := reserved[kind]
	if !ok {
		return fmt.Errorf("%s nodes accept no options", kind)
	}
	for _, w := range words {
		if suffix, wild := strings.CutPrefix(w, "*"); wild {
			if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
				return fmt.Errorf("option %q is set by %s nodes", key, kind)
			}
			continue
		}
		if key == w {
			return fmt.Errorf("option %q is set by %s nodes", key, kind)
		}
	}
	return nil
}
