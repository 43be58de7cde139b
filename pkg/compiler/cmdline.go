package compiler

import "strings"

// CompileArgs returns the MetaEditor switches for compiling sourcePath and
// writing the compiler log to logPath.
func CompileArgs(sourcePath, logPath string) []string {
	return []string{"/compile:" + sourcePath, "/log:" + logPath}
}

// CommandLine renders exe and args the way MetaEditor expects them on its
// command line: `"<exe>" /compile:"<src>" /log:"<log>"`.
//
// Switches of the form /name:value get their value quoted; anything else is
// quoted when it contains a space.
func CommandLine(exe string, args []string) string {
	var b strings.Builder
	b.WriteString(`"` + exe + `"`)
	for _, arg := range args {
		b.WriteByte(' ')
		if strings.HasPrefix(arg, "/") {
			if name, value, ok := strings.Cut(arg, ":"); ok {
				b.WriteString(name + `:"` + value + `"`)
				continue
			}
		}
		if strings.ContainsAny(arg, " \t") {
			b.WriteString(`"` + arg + `"`)
			continue
		}
		b.WriteString(arg)
	}
	return b.String()
}

// SwitchValue returns the value of a /name:value switch from args.
func SwitchValue(args []string, name string) (string, bool) {
	prefix := "/" + name + ":"
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return strings.Trim(strings.TrimPrefix(arg, prefix), `"`), true
		}
	}
	return "", false
}
