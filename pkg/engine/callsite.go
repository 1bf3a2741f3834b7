package engine

import (
	"fmt"
	"runtime"
)

// CallSite identifies a source location.
type CallSite struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function,omitempty"`
}

// Caller returns the call site skip frames above its caller. Caller(0)
// returns the location of the function calling Caller.
func Caller(skip int) *CallSite {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return nil
	}
	site := &CallSite{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		site.Function = fn.Name()
	}
	return site
}

func (c *CallSite) String() string {
	if c == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", c.File, c.Line)
}
