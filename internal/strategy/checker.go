package strategy

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
	"golang.org/x/tools/go/packages"
)

const (
	loadBarsMethod = "LoadBars"
	initMethod     = "OnInit"
)

// Violation is a LoadBars call found outside OnInit.
type Violation struct {
	File     string
	Line     int
	Column   int
	Function string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d:%d: %s called in %s, only allowed in %s", v.File, v.Line, v.Column, loadBarsMethod, v.Function, initMethod)
}

// Report is the result of a static strategy check.
type Report struct {
	Files      int
	Violations []Violation
}

func (r Report) OK() bool { return len(r.Violations) == 0 }

func (r Report) String() string {
	if r.OK() {
		return fmt.Sprintf("%d files checked, no violations", r.Files)
	}
	lines := make([]string, 0, len(r.Violations)+1)
	lines = append(lines, fmt.Sprintf("%d files checked, %d violations", r.Files, len(r.Violations)))
	for _, v := range r.Violations {
		lines = append(lines, v.String())
	}
	return strings.Join(lines, "\n")
}

// Err returns nil for a clean report.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	return errors.Wrap(exception.ErrStrategyLoadBarsMisuse, r.String())
}

// CheckSource checks a single Go source file.
func CheckSource(filename string, src []byte) (Report, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, 0)
	if err != nil {
		return Report{}, errors.Wrapf(err, "parse %s", filename)
	}
	r := Report{Files: 1, Violations: checkFile(fset, file)}
	return r, nil
}

// CheckPackage checks every Go file of the package in dir, tests excluded.
func CheckPackage(dir string) (Report, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax,
		Dir:  dir,
		ParseFile: func(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
			return parser.ParseFile(fset, filename, src, 0)
		},
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return Report{}, errors.Wrapf(err, "load package %s", dir)
	}
	if len(pkgs) == 0 {
		return Report{}, errors.Wrapf(exception.ErrInvalidArgument, "no package in %s", dir)
	}

	var r Report
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return Report{}, errors.Errorf("load package %s, err: %s", dir, pkg.Errors[0])
		}
		for _, file := range pkg.Syntax {
			r.Files++
			r.Violations = append(r.Violations, checkFile(pkg.Fset, file)...)
		}
	}
	sort.Slice(r.Violations, func(i, j int) bool {
		a, b := r.Violations[i], r.Violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	return r, nil
}

// checkFile reports LoadBars selector calls whose enclosing top level
// function is not an OnInit method. Closures count as their enclosing
// function.
func checkFile(fset *token.FileSet, file *ast.File) []Violation {
	var out []Violation
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		if fn.Recv != nil && fn.Name.Name == initMethod {
			continue
		}
		name := fn.Name.Name
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			name = receiverName(fn.Recv.List[0].Type) + "." + name
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok || sel.Sel.Name != loadBarsMethod {
				return true
			}
			pos := fset.Position(sel.Sel.Pos())
			out = append(out, Violation{
				File:     pos.Filename,
				Line:     pos.Line,
				Column:   pos.Column,
				Function: name,
			})
			return true
		})
	}
	return out
}

func receiverName(expr ast.Expr) string {
	switch v := expr.(type) {
	case *ast.StarExpr:
		return receiverName(v.X)
	case *ast.Ident:
		return v.Name
	case *ast.IndexExpr:
		return receiverName(v.X)
	case *ast.IndexListExpr:
		return receiverName(v.X)
	default:
		return "?"
	}
}
