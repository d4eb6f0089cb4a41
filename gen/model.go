package gen

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Service is the parsed form of one service interface.
type Service struct {
	Package    string
	Name       string
	TypeParams string // "[A any, M Number]" or ""
	TypeArgs   string // "[A, M]" or ""
	Imports    []string
	Methods    []*Method
}

// Method is one operation of the service.
type Method struct {
	Name       string // as declared
	Variant    string // exported name of the request variant
	Context    string // name of the leading context.Context parameter, "" if none
	Params     []*Param
	Result     string // response type; "struct{}" for error-only methods
	ErrorOnly  bool
	Recv       string // receiver name of the client method, clear of the parameter names
	Signature  string // parameter list of the client method
	Results    string // result list of the client method
	CallArgs   string // arguments the server passes to the implementation
	ContextArg string // context the client passes to Invoke
}

// Param is one argument that travels on the wire.
type Param struct {
	Local string // parameter name in the client method
	Field string // exported field name in the Args struct
	Tag   string // encoding name
	Type  string
}

// names the generated code refers to; a parameter may not shadow them.
var reserved = map[string]bool{
	"client": true, "context": true, "middleware": true, "rpcerr": true,
	"server": true, "transport": true, "err": true,
}

func errorf(fset *token.FileSet, pos token.Pos, format string, args ...any) error {
	return fmt.Errorf("%s: %s", fset.Position(pos), fmt.Sprintf(format, args...))
}

// findService locates the interface named typeName in files and builds its model.
func findService(fset *token.FileSet, files []*ast.File, typeName string) (*Service, error) {
	for _, f := range files {
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				if ts.Name.Name != typeName {
					continue
				}
				iface, ok := ts.Type.(*ast.InterfaceType)
				if !ok {
					return nil, errorf(fset, ts.Pos(), "%s is not an interface", typeName)
				}
				return buildService(fset, f, ts, iface)
			}
		}
	}
	return nil, fmt.Errorf("type %s not found", typeName)
}

func buildService(fset *token.FileSet, f *ast.File, ts *ast.TypeSpec, iface *ast.InterfaceType) (*Service, error) {
	svc := &Service{
		Package: f.Name.Name,
		Name:    ts.Name.Name,
		Imports: lo.FilterMap(f.Imports, func(spec *ast.ImportSpec, _ int) (string, bool) {
			path, _ := strconv.Unquote(spec.Path.Value)
			if path == "context" || strings.HasPrefix(path, runtime+"/") {
				return "", false
			}
			if spec.Name != nil {
				return spec.Name.Name + " " + spec.Path.Value, true
			}
			return spec.Path.Value, true
		}),
	}
	if ts.TypeParams != nil && len(ts.TypeParams.List) > 0 {
		var decl, args []string
		for _, field := range ts.TypeParams.List {
			names := lo.Map(field.Names, func(n *ast.Ident, _ int) string { return n.Name })
			decl = append(decl, strings.Join(names, ", ")+" "+types.ExprString(field.Type))
			args = append(args, names...)
		}
		svc.TypeParams = "[" + strings.Join(decl, ", ") + "]"
		svc.TypeArgs = "[" + strings.Join(args, ", ") + "]"
	}

	ctxName := contextImportName(f)
	variants := map[string]string{}
	for _, field := range iface.Methods.List {
		ft, ok := field.Type.(*ast.FuncType)
		if !ok || len(field.Names) == 0 {
			return nil, errorf(fset, field.Pos(), "%s: embedded interfaces and type constraints are not supported", svc.Name)
		}
		name := field.Names[0].Name
		m, err := buildMethod(fset, svc.Name, name, ft, ctxName)
		if err != nil {
			return nil, err
		}
		if prev, dup := variants[m.Variant]; dup {
			return nil, errorf(fset, field.Pos(), "%s: methods %s and %s both map to request variant %s", svc.Name, prev, name, m.Variant)
		}
		variants[m.Variant] = name
		svc.Methods = append(svc.Methods, m)
	}
	if len(svc.Methods) == 0 {
		return nil, errorf(fset, ts.Pos(), "%s has no methods", svc.Name)
	}
	return svc, nil
}

// contextImportName is the name the file uses for package context, "" if it
// does not import it.
func contextImportName(f *ast.File) string {
	for _, spec := range f.Imports {
		if path, _ := strconv.Unquote(spec.Path.Value); path == "context" {
			if spec.Name != nil {
				return spec.Name.Name
			}
			return "context"
		}
	}
	return ""
}

func isContext(expr ast.Expr, ctxName string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok || ctxName == "" {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && x.Name == ctxName && sel.Sel.Name == "Context"
}

func buildMethod(fset *token.FileSet, svcName, name string, ft *ast.FuncType, ctxName string) (*Method, error) {
	switch name {
	case "_":
		return nil, errorf(fset, ft.Pos(), "%s: blank method name", svcName)
	case "HandleNextRequest", "Close", "Client":
		return nil, errorf(fset, ft.Pos(), "%s: method name %s is used by the generated code", svcName, name)
	}
	m := &Method{Name: name, Variant: exported(name)}
	switch m.Variant {
	case "":
		return nil, errorf(fset, ft.Pos(), "%s.%s: cannot derive a request variant name", svcName, name)
	case "Op":
		return nil, errorf(fset, ft.Pos(), "%s.%s: request variant Op is used by the generated code", svcName, name)
	}

	// Flatten "a, b bool" into one entry per parameter.
	type param struct {
		name string
		typ  ast.Expr
	}
	var params []param
	for _, field := range ft.Params.List {
		if _, ok := field.Type.(*ast.Ellipsis); ok {
			return nil, errorf(fset, field.Pos(), "%s.%s: variadic parameters are not supported", svcName, name)
		}
		if err := checkEncodable(fset, field.Type, svcName, name); err != nil {
			return nil, err
		}
		if len(field.Names) == 0 {
			params = append(params, param{typ: field.Type})
		}
		for _, n := range field.Names {
			params = append(params, param{name: n.Name, typ: field.Type})
		}
	}

	taken := map[string]bool{}
	for i, p := range params {
		if i == 0 && isContext(p.typ, ctxName) {
			m.Context = p.name
			if m.Context == "" || m.Context == "_" || reserved[m.Context] {
				m.Context = "ctx"
			}
			taken[m.Context] = true
			continue
		}
		if isContext(p.typ, ctxName) {
			return nil, errorf(fset, p.typ.Pos(), "%s.%s: context.Context must be the first parameter", svcName, name)
		}
		idx := len(m.Params)
		local := p.name
		if local == "" || local == "_" || reserved[local] || taken[local] {
			local = fmt.Sprintf("arg%d", idx)
		}
		field := exported(p.name)
		tag := p.name
		if p.name == "" || p.name == "_" {
			field = fmt.Sprintf("Arg%d", idx)
			tag = fmt.Sprintf("arg%d", idx)
		}
		if field == "Request" {
			return nil, errorf(fset, p.typ.Pos(), "%s.%s: parameter %s is used by the generated code", svcName, name, p.name)
		}
		for _, prev := range m.Params {
			if prev.Field == field {
				return nil, errorf(fset, p.typ.Pos(), "%s.%s: parameters %s and %s both map to field %s", svcName, name, prev.Tag, tag, field)
			}
		}
		taken[local] = true
		m.Params = append(m.Params, &Param{Local: local, Field: field, Tag: tag, Type: types.ExprString(p.typ)})
	}

	if err := buildResults(fset, svcName, m, ft.Results); err != nil {
		return nil, err
	}

	m.Recv = lo.Ternary(taken["c"], "cl", "c")
	if taken[m.Recv] {
		m.Recv = "svcClient"
	}

	sig := lo.Map(m.Params, func(p *Param, _ int) string { return p.Local + " " + p.Type })
	call := lo.Map(m.Params, func(p *Param, _ int) string { return "args." + p.Field })
	m.ContextArg = "context.Background()"
	if m.Context != "" {
		sig = append([]string{m.Context + " context.Context"}, sig...)
		call = append([]string{"ctx"}, call...)
		m.ContextArg = m.Context
	}
	m.Signature = strings.Join(sig, ", ")
	m.CallArgs = strings.Join(call, ", ")
	m.Results = lo.Ternary(m.ErrorOnly, "error", "("+m.Result+", error)")
	return m, nil
}

func buildResults(fset *token.FileSet, svcName string, m *Method, results *ast.FieldList) error {
	var exprs []ast.Expr
	if results != nil {
		for _, field := range results.List {
			n := max(len(field.Names), 1)
			for i := 0; i < n; i++ {
				exprs = append(exprs, field.Type)
			}
		}
	}
	last := len(exprs) - 1
	if last < 0 || !isError(exprs[last]) {
		return fmt.Errorf("%s.%s: the last result must be error", svcName, m.Name)
	}
	switch len(exprs) {
	case 1:
		m.ErrorOnly = true
		m.Result = "struct{}"
	case 2:
		if err := checkEncodable(fset, exprs[0], svcName, m.Name); err != nil {
			return err
		}
		m.Result = types.ExprString(exprs[0])
	default:
		return errorf(fset, exprs[0].Pos(), "%s.%s: at most one result besides error is supported", svcName, m.Name)
	}
	return nil
}

func isError(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == "error"
}

// checkEncodable rejects types that no codec can carry.
func checkEncodable(fset *token.FileSet, expr ast.Expr, svcName, method string) error {
	var bad ast.Node
	ast.Inspect(expr, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.FuncType, *ast.ChanType:
			if bad == nil {
				bad = n
			}
			return false
		}
		return bad == nil
	})
	if bad != nil {
		return errorf(fset, bad.Pos(), "%s.%s: func and chan types cannot be sent", svcName, method)
	}
	return nil
}

// exported converts a Go or snake_case name to exported CamelCase:
// "and" → "And", "ttv_calc" → "TtvCalc".
func exported(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
