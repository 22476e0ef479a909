// Package flagx holds helpers for sharing os.Args between several
// independent flag sets.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// partition splits args into the flags named in allowed, together with
// their values, and everything else. Both "-f value" and "-f=value" forms
// are recognized; a value is only consumed when the next argument does not
// itself look like a flag.
func partition(args []string, allowed []string) (kept, rest []string) {
	names := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		names[f] = struct{}{}
	}

	kept = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := names[name]; keep {
				kept = append(kept, arg)
			} else {
				rest = append(rest, arg)
			}
			continue
		}

		if _, keep := names[arg]; !keep {
			rest = append(rest, arg)
			continue
		}
		kept = append(kept, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			kept = append(kept, args[i+1])
			i++
		}
	}
	return kept, rest
}

// FilterArgs keeps only the flags named in allowed, together with their
// values.
func FilterArgs(args []string, allowed []string) []string {
	kept, _ := partition(args, allowed)
	return kept
}

// StripArgs drops the flags named in allowed, together with their values,
// and returns the remaining arguments in order.
func StripArgs(args []string, allowed []string) []string {
	_, rest := partition(args, allowed)
	return rest
}

// ConfigPath extracts the JSON config file path given via -c or -config.
// It returns "" when neither flag is present.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}

// JsonConfigFlags is ConfigPath applied to the process arguments.
func JsonConfigFlags() string {
	return ConfigPath(os.Args[1:])
}
