// Package instrument rewrites Go source so that every task creation, await
// boundary, and channel operation passes through the controlled runtime.
// Goroutines become scheduler-registered task operations tagged with an
// explicit continuation identifier; channel sends, receives, and closes are
// lowered to controlled hooks that block as scheduler-visible resource waits
// instead of blocking inside the Go runtime; main gains the runtime
// lifecycle calls.
package instrument

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"

	"golang.org/x/tools/go/ast/astutil"
)

// Config holds configuration for the instrumentation.
type Config struct {
	// ImportRewrites maps import paths to replacement paths.
	ImportRewrites map[string]string

	// BaseRuntimeAddress is the import path of the runtime package.
	BaseRuntimeAddress string

	// RuntimeAlias is the import alias for the runtime package.
	// If empty, a mangled name is generated from BaseRuntimeAddress.
	RuntimeAlias string

	// SpawnFunc is the name of the task creation hook.
	SpawnFunc string

	// SendFunc, RecvFunc, RecvOKFunc, and CloseFunc are the controlled
	// channel-operation hooks.
	SendFunc   string
	RecvFunc   string
	RecvOKFunc string
	CloseFunc  string

	// EnterFunc is the name of the continuation-transfer hook.
	EnterFunc string

	// InitializeFunc and FinalizeFunc are the runtime lifecycle entry points
	// injected into main.
	InitializeFunc string
	FinalizeFunc   string
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig() *Config {
	return &Config{
		BaseRuntimeAddress: "github.com/amirkhaki/mycroft/pkg/runtime",
		RuntimeAlias:       "", // Will be auto-generated
		SpawnFunc:          "SpawnTask",
		SendFunc:           "ChanSend",
		RecvFunc:           "ChanRecv",
		RecvOKFunc:         "ChanRecvOK",
		CloseFunc:          "ChanClose",
		EnterFunc:          "EnterContinuation",
		InitializeFunc:     "Initialize",
		FinalizeFunc:       "Finalize",
		ImportRewrites:     map[string]string{},
	}
}

// Instrumenter handles the instrumentation of Go source code.
type Instrumenter struct {
	config          *Config
	instrumented    bool // tracks if any instrumentation was added to current file
	anyInstrumented bool // tracks if any file had instrumentation
}

// NewInstrumenter creates a new Instrumenter with the given config.
func NewInstrumenter(config *Config) *Instrumenter {
	if config == nil {
		config = DefaultConfig()
	}

	if config.RuntimeAlias == "" {
		config.RuntimeAlias = generateRuntimeAlias(config.BaseRuntimeAddress)
	}

	return &Instrumenter{
		config: config,
	}
}

// generateRuntimeAlias creates a deterministic mangled alias from the import
// path, so the injected import can never conflict with user imports.
func generateRuntimeAlias(importPath string) string {
	hash := sha256.Sum256([]byte(importPath))
	hashStr := hex.EncodeToString(hash[:8])
	return "__mycroft_" + hashStr
}

// WasInstrumented returns true if any instrumentation was added during the
// last operation.
func (instr *Instrumenter) WasInstrumented() bool {
	return instr.anyInstrumented
}

// InstrumentFile instruments a single Go source file.
func (instr *Instrumenter) InstrumentFile(fset *token.FileSet, filename string, src interface{}) (*ast.File, error) {
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	instr.anyInstrumented = false
	instr.instrumentSingleAST(fset, f)
	return f, nil
}

// InstrumentFiles instruments multiple Go source files together.
func (instr *Instrumenter) InstrumentFiles(fset *token.FileSet, filenames []string) ([]*ast.File, error) {
	files := make([]*ast.File, len(filenames))
	for i, filename := range filenames {
		f, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
		files[i] = f
	}

	instr.anyInstrumented = false
	for _, f := range files {
		instr.instrumentSingleAST(fset, f)
	}
	return files, nil
}

// instrumentSingleAST performs the actual instrumentation on a single file.
func (instr *Instrumenter) instrumentSingleAST(fset *token.FileSet, f *ast.File) {
	for k, v := range instr.config.ImportRewrites {
		astutil.RewriteImport(fset, f, k, v)
	}

	instr.instrumented = false

	// First pass: channel operations become controlled hooks. A native
	// channel block while holding the turn would hang the whole execution,
	// so sends, receives, and closes are lowered rather than merely preceded
	// by a scheduling point. Select statements keep native semantics.
	astutil.Apply(f, instr.pruneNativeChannelContexts, instr.lowerChannelOp)

	// Second pass: go statements become controlled task spawns.
	astutil.Apply(f, nil, func(c *astutil.Cursor) bool {
		if stmt, ok := c.Node().(*ast.GoStmt); ok {
			instr.instrumentGoStmt(fset, c, stmt)
		}
		return true
	})

	// Third pass: the main function gains the runtime lifecycle.
	instr.instrumentMainFunction(f)

	if instr.instrumented {
		instr.anyInstrumented = true
		astutil.AddNamedImport(fset, f, instr.config.RuntimeAlias, instr.config.BaseRuntimeAddress)
	}
}

func (instr *Instrumenter) runtimeCall(fn string, args ...ast.Expr) *ast.CallExpr {
	instr.instrumented = true
	return &ast.CallExpr{
		Fun: &ast.SelectorExpr{
			X:   &ast.Ident{Name: instr.config.RuntimeAlias},
			Sel: &ast.Ident{Name: fn},
		},
		Args: args,
	}
}

// continuationName builds the explicit continuation identifier for a spawn
// site. Positions make identifiers stable across runs of the same source,
// which replay depends on.
func continuationName(fset *token.FileSet, pos token.Pos) string {
	p := fset.Position(pos)
	return fmt.Sprintf("go@%s:%d", filepath.Base(p.Filename), p.Line)
}

// instrumentGoStmt transforms:
//
//	go f(expr1, expr2)
//
// into:
//
//	{
//		p0 := expr1
//		p1 := expr2
//		alias.SpawnTask("go@file:line", func() {
//			alias.EnterContinuation("go@file:line")
//			f(p0, p1)
//		})
//	}
//
// Arguments are hoisted so they are evaluated in the spawning operation, as
// the go statement would have done.
func (instr *Instrumenter) instrumentGoStmt(fset *token.FileSet, c *astutil.Cursor, stmt *ast.GoStmt) {
	name := continuationName(fset, stmt.Pos())

	var blockStmts []ast.Stmt
	var paramIdents []ast.Expr
	for i, arg := range stmt.Call.Args {
		paramName := &ast.Ident{Name: fmt.Sprintf("__mycroft_p%d", i)}
		blockStmts = append(blockStmts, &ast.AssignStmt{
			Lhs: []ast.Expr{paramName},
			Tok: token.DEFINE,
			Rhs: []ast.Expr{arg},
		})
		paramIdents = append(paramIdents, paramName)
	}

	wrappedCall := &ast.CallExpr{
		Fun:  stmt.Call.Fun,
		Args: paramIdents,
	}

	nameLit := &ast.BasicLit{Kind: token.STRING, Value: fmt.Sprintf("%q", name)}
	funcLit := &ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}},
		Body: &ast.BlockStmt{
			List: []ast.Stmt{
				&ast.ExprStmt{X: instr.runtimeCall(instr.config.EnterFunc, nameLit)},
				&ast.ExprStmt{X: wrappedCall},
			},
		},
	}

	blockStmts = append(blockStmts, &ast.ExprStmt{
		X: instr.runtimeCall(instr.config.SpawnFunc, nameLit, funcLit),
	})

	c.Replace(&ast.BlockStmt{List: blockStmts})
}

// pruneNativeChannelContexts keeps select communication clauses and
// two-value receives out of the generic lowering. A select's comm must stay
// a native channel operation to parse; a two-value receive must become a
// single two-result hook call rather than a one-result one.
func (instr *Instrumenter) pruneNativeChannelContexts(c *astutil.Cursor) bool {
	if _, ok := c.Parent().(*ast.CommClause); ok && c.Name() == "Comm" {
		return false
	}
	if n, ok := c.Node().(*ast.AssignStmt); ok && len(n.Lhs) == 2 && len(n.Rhs) == 1 {
		if u, ok := n.Rhs[0].(*ast.UnaryExpr); ok && u.Op == token.ARROW {
			n.Rhs[0] = instr.runtimeCall(instr.config.RecvOKFunc, u.X)
			return false
		}
	}
	return true
}

// lowerChannelOp rewrites sends, single-value receives, and closes into
// their controlled hooks. Runs after children, so nested receives in a
// send's operands are already lowered.
func (instr *Instrumenter) lowerChannelOp(c *astutil.Cursor) bool {
	switch n := c.Node().(type) {
	case *ast.SendStmt:
		c.Replace(&ast.ExprStmt{X: instr.runtimeCall(instr.config.SendFunc, n.Chan, n.Value)})
	case *ast.UnaryExpr:
		if n.Op == token.ARROW {
			c.Replace(instr.runtimeCall(instr.config.RecvFunc, n.X))
		}
	case *ast.ExprStmt:
		call, ok := n.X.(*ast.CallExpr)
		if !ok {
			return true
		}
		if id, ok := call.Fun.(*ast.Ident); ok && id.Name == "close" && len(call.Args) == 1 {
			c.Replace(&ast.ExprStmt{X: instr.runtimeCall(instr.config.CloseFunc, call.Args[0])})
		}
	}
	return true
}

// instrumentMainFunction wraps main() of the main package in the runtime
// lifecycle: Initialize first, Finalize deferred so it also observes a
// failing or canceled root operation.
func (instr *Instrumenter) instrumentMainFunction(f *ast.File) {
	if f.Name.Name != "main" {
		return
	}

	for _, decl := range f.Decls {
		funcDecl, ok := decl.(*ast.FuncDecl)
		if !ok || funcDecl.Name.Name != "main" || funcDecl.Recv != nil || funcDecl.Body == nil {
			continue
		}

		initCall := &ast.ExprStmt{X: instr.runtimeCall(instr.config.InitializeFunc)}
		finalizeCall := &ast.DeferStmt{Call: instr.runtimeCall(instr.config.FinalizeFunc)}

		funcDecl.Body.List = append(
			[]ast.Stmt{initCall, finalizeCall},
			funcDecl.Body.List...,
		)
		break
	}
}
