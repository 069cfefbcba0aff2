package wheel

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// EntryPoint is one script declared in dist-info/entry_points.txt.
type EntryPoint struct {
	// Name is the script file name.
	Name string

	// Module and Attr split the "module:attr" object reference.
	Module string
	Attr   string

	// Section is the entry point group, "console_scripts" or
	// "gui_scripts".
	Section string
}

// scriptSections are the entry point groups installed as executable
// scripts. On POSIX systems both kinds get the same treatment.
var scriptSections = map[string]bool{
	"console_scripts": true,
	"gui_scripts":     true,
}

// EntryPoints returns the script entry points the wheel declares. A
// wheel without an entry_points.txt has none.
func (a *Archive) EntryPoints() ([]EntryPoint, error) {
	e, ok := a.lookup(a.distInfoDir + "/entry_points.txt")
	if !ok {
		return nil, nil
	}
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	eps, err := ParseEntryPoints(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	return eps, nil
}

// ParseEntryPoints reads an entry_points.txt, returning only the
// script sections. The format is INI-like: "[section]" headers and
// "name = module:attr" assignments, with optional extras markers after
// the object reference.
func ParseEntryPoints(r io.Reader) ([]EntryPoint, error) {
	var eps []EntryPoint
	section := ""

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		if !scriptSections[section] {
			continue
		}

		name, object, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("parse entry_points.txt: malformed line %q", line)
		}
		if i := strings.Index(object, "["); i >= 0 {
			object = object[:i]
		}
		module, attr, ok := strings.Cut(strings.TrimSpace(object), ":")
		if !ok || module == "" || attr == "" {
			return nil, fmt.Errorf("parse entry_points.txt: script %q needs a module:attr object",
				strings.TrimSpace(name))
		}
		eps = append(eps, EntryPoint{
			Name:    strings.TrimSpace(name),
			Module:  module,
			Attr:    strings.TrimSpace(attr),
			Section: section,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse entry_points.txt: %w", err)
	}
	return eps, nil
}
