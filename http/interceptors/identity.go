package interceptors

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/rainbow-me/api-audit/audit"
)

// GeneralInfo keys describing the handler beyond its short name.
const (
	InfoHandlerFullName = "HandlerFullName"
	InfoHandlerPackage  = "HandlerPackage"
	InfoHandlerModule   = "HandlerModule"
	InfoHandlerBaseType = "HandlerBaseType"
)

// HandlerIdentity names the code serving a request.
type HandlerIdentity struct {
	Name     string // e.g. orders.(*Handler).Create
	FullName string // e.g. github.com/acme/orders.(*Handler).Create
	Package  string // e.g. github.com/acme/orders
	Action   string // e.g. Create
	BaseType string // func, struct, ...
}

// IdentityFromFuncName splits a runtime function name such as gin's HandlerName().
func IdentityFromFuncName(full string) HandlerIdentity {
	full = strings.TrimSuffix(full, "-fm")
	if full == "" {
		return HandlerIdentity{}
	}

	id := HandlerIdentity{FullName: full, Name: full, BaseType: reflect.Func.String()}
	slash := strings.LastIndex(full, "/")
	if dot := strings.Index(full[slash+1:], "."); dot >= 0 {
		id.Package = full[:slash+1+dot]
		id.Name = full[slash+1:]
	}
	id.Action = full[strings.LastIndex(full, ".")+1:]
	return id
}

// IdentityOf describes h, which is usually an http.Handler, a function or a method value.
func IdentityOf(h any) HandlerIdentity {
	if h == nil {
		return HandlerIdentity{}
	}

	v := reflect.ValueOf(h)
	if v.Kind() == reflect.Func {
		if fn := runtime.FuncForPC(v.Pointer()); fn != nil {
			return IdentityFromFuncName(fn.Name())
		}
		return HandlerIdentity{}
	}

	t := v.Type()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	id := HandlerIdentity{
		Name:     t.String(),
		Package:  t.PkgPath(),
		BaseType: t.Kind().String(),
	}
	if t.PkgPath() != "" && t.Name() != "" {
		id.FullName = t.PkgPath() + "." + t.Name()
	}
	return id
}

// applyIdentity copies the handler identity into the builder's GeneralInfo.
func applyIdentity(b *audit.RequestBuilder, id HandlerIdentity, module string) {
	b.GeneralInfo(InfoHandlerFullName, id.FullName).
		GeneralInfo(InfoHandlerPackage, id.Package).
		GeneralInfo(InfoHandlerModule, module).
		GeneralInfo(InfoHandlerBaseType, id.BaseType)
}
