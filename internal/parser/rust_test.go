package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwierrors "github.com/standardbeagle/lwi/internal/errors"
	"github.com/standardbeagle/lwi/internal/types"
	"github.com/standardbeagle/lwi/testhelpers"
)

func findFunction(t *testing.T, fs *FileStructure, name string) types.FunctionInfo {
	t.Helper()
	for _, fn := range fs.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %s not extracted", name)
	return types.FunctionInfo{}
}

func TestParseOrdersFixture(t *testing.T) {
	fs, err := Parse([]byte(testhelpers.OrdersSource))
	require.NoError(t, err)
	require.Len(t, fs.Functions, 2)

	create := findFunction(t, fs, "create_order")
	assert.Equal(t, [2]int{10, 14}, create.Span())
	assert.Equal(t, types.VisibilityPublic, create.Visibility)
	assert.False(t, create.IsAsync)
	assert.Equal(t, []string{"id: u32"}, create.Parameters)
	assert.Equal(t, "Order", create.ReturnType)
	assert.Equal(t, "pub fn create_order(id: u32) -> Order", create.Signature)
	assert.Equal(t, []string{"new", "validate"}, create.Calls)
	require.Len(t, create.CallSites, 2)
	assert.Equal(t, types.CallSite{Name: "new", Line: 11}, create.CallSites[0])
	assert.Equal(t, types.CallSite{Name: "validate", Line: 12}, create.CallSites[1])

	validate := findFunction(t, fs, "validate")
	assert.Equal(t, types.VisibilityPrivate, validate.Visibility)
	assert.Equal(t, []string{"is_valid"}, validate.Calls)

	require.Len(t, fs.Structs, 1)
	store := fs.Structs[0]
	assert.Equal(t, "OrderStore", store.Name)
	assert.Equal(t, [2]int{3, 6}, [2]int{store.StartLine, store.EndLine})
	require.Len(t, store.Fields, 2)
	assert.Equal(t, types.FieldInfo{Name: "name", Type: "String", Visibility: types.VisibilityPublic}, store.Fields[0])
	assert.Equal(t, types.FieldInfo{Name: "count", Type: "u32", Visibility: types.VisibilityPrivate}, store.Fields[1])
}

func TestParseHandlerFixture(t *testing.T) {
	fs, err := Parse([]byte(testhelpers.HandlerSource))
	require.NoError(t, err)

	create := findFunction(t, fs, "create")
	assert.True(t, create.IsAsync)
	assert.Equal(t, []string{"Json", "clamp", "create_order", "log_request", "parse_total"}, create.Calls)
	assert.Contains(t, create.CallSites, types.CallSite{Name: "create_order", Line: 40})

	parseTotal := findFunction(t, fs, "parse_total")
	assert.Equal(t, []string{"parse", "trim", "unwrap_or_default"}, parseTotal.Calls)

	// Macro bodies are not expanded
	logRequest := findFunction(t, fs, "log_request")
	assert.Empty(t, logRequest.Calls)

	for i := 1; i < len(fs.Functions); i++ {
		assert.LessOrEqual(t, fs.Functions[i-1].StartLine, fs.Functions[i].StartLine)
	}
}

func TestParseMethodsAndModules(t *testing.T) {
	src := `pub(crate) struct Ledger(pub u64, String);

impl Ledger {
    pub fn total(&self) -> u64 {
        self.0
    }

    pub(super) async fn sync(&mut self, remote: &str) {
        push(remote).await;
    }
}

impl<T> Store<T> {
    fn get(&self) -> Option<&T> {
        None
    }
}

trait Audit {
    fn audit(&self) {
        record();
    }
}

mod internal {
    pub fn helper() {
        fn nested() {
            deep_call();
        }
        nested();
    }
}
`
	fs, err := Parse([]byte(src))
	require.NoError(t, err)

	total := findFunction(t, fs, "total")
	assert.Equal(t, "Ledger", total.Owner)
	assert.Equal(t, []string{"&self"}, total.Parameters)

	sync := findFunction(t, fs, "sync")
	assert.Equal(t, "Ledger", sync.Owner)
	assert.True(t, sync.IsAsync)
	assert.Equal(t, types.VisibilityRestricted, sync.Visibility)
	assert.Equal(t, []string{"&mut self", "remote: &str"}, sync.Parameters)
	assert.Equal(t, []string{"push"}, sync.Calls)

	assert.Equal(t, "Store", findFunction(t, fs, "get").Owner)
	assert.Equal(t, "Audit", findFunction(t, fs, "audit").Owner)

	helper := findFunction(t, fs, "helper")
	assert.Equal(t, "internal", helper.Scope)
	assert.Equal(t, []string{"nested"}, helper.Calls, "nested function calls belong to the nested function")

	nested := findFunction(t, fs, "nested")
	assert.Equal(t, "internal", nested.Scope)
	assert.Equal(t, []string{"deep_call"}, nested.Calls)

	require.Len(t, fs.Structs, 1)
	ledger := fs.Structs[0]
	assert.Equal(t, types.VisibilityCrate, ledger.Visibility)
	require.Len(t, ledger.Fields, 2)
	assert.Equal(t, types.FieldInfo{Name: "0", Type: "u64", Visibility: types.VisibilityPublic}, ledger.Fields[0])
	assert.Equal(t, types.FieldInfo{Name: "1", Type: "String", Visibility: types.VisibilityPrivate}, ledger.Fields[1])
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("fn broken( {\n    let x = ;\n"))
	require.Error(t, err)

	var pe *lwierrors.ParseError
	require.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, ErrSyntax))
	assert.Greater(t, pe.Line, 0)
}

func TestParseEmptyFile(t *testing.T) {
	fs, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, fs.Functions)
	assert.Empty(t, fs.Structs)
}

func TestParseIsPureAcrossCalls(t *testing.T) {
	first, err := Parse([]byte(testhelpers.OrdersSource))
	require.NoError(t, err)
	second, err := Parse([]byte(testhelpers.OrdersSource))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestModulePath(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"main.rs", "crate"},
		{"lib.rs", "crate"},
		{"orders.rs", "orders"},
		{"orders/mod.rs", "orders"},
		{"orders/store.rs", "orders::store"},
		{"api/v1/handlers.rs", "api::v1::handlers"},
		{"bin/tool.rs", "bin::tool"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, ModulePath(tt.rel))
		})
	}
}
