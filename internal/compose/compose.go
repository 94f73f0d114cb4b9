// Package compose turns raw message templates into final outbound text.
//
// The pipeline is fixed: macro expansion through the external expander
// first, emoji placeholder substitution second. Expansion failures fall
// back to the raw template; emoji substitution is never skipped.
package compose

import (
	"cibot/internal/emoji"
	logx "cibot/pkg/logx"
)

// Context carries the build/execution values available to macro expansion,
// e.g. JOB_NAME or BUILD_NUMBER.
type Context map[string]string

// Expander is the external macro engine. Its grammar is its own business;
// the composer only relies on the call contract.
type Expander interface {
	Expand(template string, env Context) (string, error)
}

type Composer struct {
	expander Expander
	log      logx.Logger
}

func New(expander Expander, log logx.Logger) *Composer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Composer{expander: expander, log: log}
}

// Compose expands macros and substitutes emoji placeholders. It is pure
// with respect to its inputs and performs no I/O.
func (c *Composer) Compose(raw string, env Context) string {
	text := raw
	if c.expander != nil {
		expanded, err := c.expander.Expand(raw, env)
		if err != nil {
			// Fall back to the unexpanded template; emoji substitution below
			// still applies.
			c.log.Warn("macro expansion failed; sending raw template", logx.Err(err))
		} else {
			text = expanded
		}
	}
	return emoji.Replace(text)
}
