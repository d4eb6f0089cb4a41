package gen

import "text/template"

const runtime = "duty"

var fileTemplate = template.Must(template.New("file").Parse(`// Code generated by dutygen --type {{.Name}}; DO NOT EDIT.

package {{.Package}}

import (
	"context"

	"` + runtime + `/client"
	"` + runtime + `/middleware"
	"` + runtime + `/rpcerr"
	"` + runtime + `/server"
	"` + runtime + `/transport"
{{- range .Imports}}
	{{.}}
{{- end}}
)
{{$svc := .}}
// {{.Name}}Request carries exactly one {{.Name}} operation.
type {{.Name}}Request{{.TypeParams}} struct {
{{- range .Methods}}
	{{.Variant}} *{{$svc.Name}}{{.Variant}}Args{{$svc.TypeArgs}} ` + "`" + `json:"{{.Variant}},omitempty"` + "`" + `
{{- end}}
}

// Op returns the name of the operation r carries.
func (r *{{.Name}}Request{{.TypeArgs}}) Op() (string, error) {
	var ops []string
{{- range .Methods}}
	if r.{{.Variant}} != nil {
		ops = append(ops, "{{.Variant}}")
	}
{{- end}}
	if len(ops) != 1 {
		return "", rpcerr.Errorf(rpcerr.KindMalformed, "{{.Name}}", "request carries %d operations %v, want 1", len(ops), ops)
	}
	return ops[0], nil
}
{{range .Methods}}
// {{$svc.Name}}{{.Variant}}Args holds the arguments of {{.Name}}.
type {{$svc.Name}}{{.Variant}}Args{{$svc.TypeParams}} struct {
{{- range .Params}}
	{{.Field}} {{.Type}} ` + "`" + `json:"{{.Tag}}"` + "`" + `
{{- end}}
}

// Request wraps a into a {{$svc.Name}}Request.
func (a *{{$svc.Name}}{{.Variant}}Args{{$svc.TypeArgs}}) Request() any {
	return &{{$svc.Name}}Request{{$svc.TypeArgs}}{ {{.Variant}}: a }
}
{{end}}
// {{.Name}}Client calls {{.Name}} on the other end of a transport.
type {{.Name}}Client{{.TypeParams}} struct {
	c *client.Client
}

func New{{.Name}}Client{{.TypeParams}}(t transport.Transport) *{{.Name}}Client{{.TypeArgs}} {
	return &{{.Name}}Client{{.TypeArgs}}{c: client.New(t)}
}

// Client returns the underlying client, for Call and dispatching.
func (c *{{.Name}}Client{{.TypeArgs}}) Client() *client.Client {
	return c.c
}

func (c *{{.Name}}Client{{.TypeArgs}}) Close() error {
	return c.c.Close()
}
{{range .Methods}}
func ({{.Recv}} *{{$svc.Name}}Client{{$svc.TypeArgs}}) {{.Name}}({{.Signature}}) {{.Results}} {
	{{if .ErrorOnly}}_, err := {{else}}return {{end}}client.Invoke[{{.Result}}]({{.ContextArg}}, {{.Recv}}.c, "{{.Variant}}", &{{$svc.Name}}Request{{$svc.TypeArgs}}{
		{{.Variant}}: &{{$svc.Name}}{{.Variant}}Args{{$svc.TypeArgs}}{ {{- range .Params}}{{.Field}}: {{.Local}}, {{end -}} },
	})
	{{- if .ErrorOnly}}
	return err
	{{- end}}
}
{{end}}
// {{.Name}}Server answers {{.Name}} requests with Impl.
type {{.Name}}Server{{.TypeParams}} struct {
	Impl  {{.Name}}{{.TypeArgs}}
	chain middleware.Middleware
}

func New{{.Name}}Server{{.TypeParams}}(impl {{.Name}}{{.TypeArgs}}, mws ...middleware.Middleware) *{{.Name}}Server{{.TypeArgs}} {
	return &{{.Name}}Server{{.TypeArgs}}{Impl: impl, chain: middleware.Chain(mws...)}
}

// HandleNextRequest receives one request from t and sends back the result of the matching Impl method.
func (s *{{.Name}}Server{{.TypeArgs}}) HandleNextRequest(ctx context.Context, t transport.Transport) error {
	var req {{.Name}}Request{{.TypeArgs}}
	if err := t.Receive(&req); err != nil {
		return err
	}
	op, err := req.Op()
	if err != nil {
		return server.Reject(t, err)
	}
	switch op {
{{- range .Methods}}
	case "{{.Variant}}":
		args := req.{{.Variant}}
		return server.Reply(ctx, t, s.chain, op, args, func(ctx context.Context) (any, error) {
			{{- if .ErrorOnly}}
			return struct{}{}, s.Impl.{{.Name}}({{.CallArgs}})
			{{- else}}
			return s.Impl.{{.Name}}({{.CallArgs}})
			{{- end}}
		})
{{- end}}
	}
	return server.Reject(t, rpcerr.Errorf(rpcerr.KindMalformed, "{{.Name}}", "unknown operation %q", op))
}
{{- if not .TypeParams}}

var (
	_ {{.Name}}        = (*{{.Name}}Client)(nil)
	_ server.Handler = (*{{.Name}}Server)(nil)
)
{{- end}}
`))
