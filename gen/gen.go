// Package gen turns a service interface into the code that carries it over a
// transport: a request union with one variant per method, an Args struct per
// method, a client proxy and a server whose HandleNextRequest dispatches to an
// implementation of the interface.
package gen

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/tools/imports"

	"duty/logging"
)

var log = logging.NewDomain("gen")

// Parse finds the interface typeName in the given files.
func Parse(fset *token.FileSet, files []*ast.File, typeName string) (*Service, error) {
	return findService(fset, files, typeName)
}

// ParseSource is Parse over a single file held in memory.
func ParseSource(filename string, src []byte, typeName string) (*Service, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}
	return findService(fset, []*ast.File{f}, typeName)
}

// Generate renders the code for svc. The result is gofmt-formatted and
// carries only the imports it uses.
func Generate(svc *Service, filename string) ([]byte, error) {
	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, svc); err != nil {
		return nil, errors.Wrap(err, "execute template")
	}
	out, err := imports.Process(filename, buf.Bytes(), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "format generated code for %s\n%s", svc.Name, buf.Bytes())
	}
	return out, nil
}

// OutputName is the default file name for the code generated from typeName:
// LogicService → logic_service_duty.go.
func OutputName(typeName string) string {
	var b strings.Builder
	r := []rune(typeName)
	for i, c := range r {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(r[i-1]) || i+1 < len(r) && unicode.IsLower(r[i+1])) {
				b.WriteByte('_')
			}
			c = unicode.ToLower(c)
		}
		b.WriteRune(c)
	}
	return b.String() + "_duty.go"
}

// GenerateDir parses the package in dir, generates the code for typeName and
// writes it to output inside dir. Test files and output itself are skipped
// while parsing.
func GenerateDir(dir, typeName, output string) error {
	if output == "" {
		output = OutputName(typeName)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read package dir")
	}

	fset := token.NewFileSet()
	var files []*ast.File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") || name == output {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ParseComments)
		if err != nil {
			return errors.Wrap(err, "parse")
		}
		files = append(files, f)
	}

	svc, err := Parse(fset, files, typeName)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, output)
	src, err := Generate(svc, path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return errors.Wrap(err, "write output")
	}
	log.Info().Str("service", svc.Name).Int("methods", len(svc.Methods)).Str("file", path).Msg("generated")
	return nil
}
