package relay

import (
	"fmt"
	"io"

	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/registry"
)

// FrameRecords decodes frame pairs with registered types, unknown ids skipped.
func FrameRecords(reg *registry.Registry, f *frame.Frame) []registry.Record {
	rs := make([]registry.Record, 0, len(f.Pairs))
	for i := range f.Pairs {
		p := &f.Pairs[i]
		v, ok := reg.Lookup(p.ID)
		if !ok {
			continue
		}
		value, err := v.Type.Decode(p.Bytes())
		if err != nil {
			continue
		}
		rs = append(rs, registry.Record{TS: f.TS, ID: v.ID, Name: v.Name, Type: v.Type.String(), Value: value})
	}
	return rs
}

// PrintFunc writes FormatRecord line per value, errors prefixed with "error:".
func PrintFunc(w io.Writer, reg *registry.Registry) frame.HandlerFunc {
	return func(f *frame.Frame, err error) {
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return
		}
		for _, r := range FrameRecords(reg, f) {
			fmt.Fprintln(w, FormatRecord(r))
		}
	}
}
