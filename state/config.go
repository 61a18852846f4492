package state

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	tele_config "github.com/temoto/easyuart/tele/config"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`
	// only used for Unmarshal, moved to Variables after each source
	XXX_Variables []VariableConfig `hcl:"variable"`

	Link struct {
		Checksum string `hcl:"checksum"`
		MaxFrame int    `hcl:"max_frame"`
		Capacity int    `hcl:"capacity"`
		TickMs   int    `hcl:"tick_ms"`
		LogDebug bool   `hcl:"log_debug"`
	}
	Rate struct {
		VeryFastMs int `hcl:"very_fast_ms"`
		FastMs     int `hcl:"fast_ms"`
		SlowMs     int `hcl:"slow_ms"`
	}
	Variables []VariableConfig `hcl:"-"`
	Counter   struct {
		WidthBits    int `hcl:"width_bits"`
		ResolutionUs int `hcl:"resolution_us"`
	}
	Uart struct {
		Device        string `hcl:"device"`
		Baud          int    `hcl:"baud"`
		ReadTimeoutMs int    `hcl:"read_timeout_ms"`
		DEChip        string `hcl:"de_chip"`
		DELine        int    `hcl:"de_line"`
		ReopenSec     int    `hcl:"reopen_sec"`
	}
	Log struct {
		Level string `hcl:"level"`
	}
	Tele tele_config.Config `hcl:"tele"`
	Feed struct {
		Listen string `hcl:"listen"`
	}
	Persist struct {
		Root        string `hcl:"root"`
		Enable      bool   `hcl:"enable"`
		SnapshotSec int    `hcl:"snapshot_sec"`
	}

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type VariableConfig struct {
	Name string `hcl:"name,key"`
	ID   int    `hcl:"id"`
	Type string `hcl:"type"`
	Rate string `hcl:"rate"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
			return
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}
	c.Variables = append(c.Variables, c.XXX_Variables...)
	c.XXX_Variables = nil

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig parses sources in order, later values overwrite earlier.
// Variables accumulate across sources and includes.
// Result is validated and defaults applied, all problems folded into one error.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		errs = append(errs, c.validate()...)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
