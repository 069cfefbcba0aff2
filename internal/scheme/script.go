package scheme

import (
	"fmt"
	"path"
	"strings"
)

// scriptTemplate is the stub body generated for entry point scripts,
// matching the one wheel installers emit. The argv[0] rewrite lets the
// same stub back a launcher-suffixed name.
const scriptTemplate = `
# -*- coding: utf-8 -*-
import re
import sys
from %s import %s
if __name__ == '__main__':
    sys.argv[0] = re.sub(r'(-script\.pyw|\.exe)?$', '', sys.argv[0])
    sys.exit(%s())
`

// Script renders an executable entry point script that invokes
// module:attr under interp.
func Script(interp, module, attr string) []byte {
	importName, _, _ := strings.Cut(attr, ".")
	body := fmt.Sprintf(scriptTemplate, module, importName, attr)
	out := append(BuildShebang(interp), '\n')
	return append(out, body...)
}

// RouteScript computes the destination of a generated entry point
// script, which has no archive entry of its own.
func (r Router) RouteScript(name string) Routed {
	dest := path.Join(r.Scheme.Scripts, name)
	return Routed{
		Category:   Scripts,
		Path:       dest,
		RecordPath: relativeTo(r.Scheme.Root(r.RootIsPurelib), dest),
	}
}
