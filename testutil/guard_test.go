package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImport, "opsreport/internal/core", true},
		{"internal pkg", InternalImport, "opsreport/pkg/domain", false},
		{"infra", InfraImport, "opsreport/internal/infra/blob/s3", true},
		{"infra factory", InfraImport, "opsreport/internal/blob", false},
		{"transport std", TransportImport, "net/http", true},
		{"transport mux", TransportImport, "github.com/gorilla/mux", true},
		{"transport adapter", TransportImport, "opsreport/internal/adapters/httpapi", true},
		{"transport url", TransportImport, "net/url", false},
		{"third party", ThirdPartyImport, "github.com/google/uuid", true},
		{"third party x", ThirdPartyImport, "golang.org/x/time/rate", true},
		{"std", ThirdPartyImport, "encoding/json", false},
		{"std vendored", ThirdPartyImport, "vendor/golang.org/x/net/dns/dnsmessage", false},
		{"module", ThirdPartyImport, "opsreport/pkg/domain", false},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.in); got != tc.want {
			t.Fatalf("%s: %q -> %v, want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestFailIfViolations(t *testing.T) {
	var r recordingFatal
	failIfViolations(&r, "kind", "reason", nil)
	if r.msg != "" {
		t.Fatalf("no violations should not fail")
	}
	failIfViolations(&r, "kind", "reason", []string{"x"})
	if r.msg == "" {
		t.Fatalf("violations should fail")
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"net/http\"\n)\nvar _ = fmt.Sprint\nvar _ = http.MethodGet\n")
	write("a_test.go", "package tmp\nimport \"github.com/gorilla/mux\"\nvar _ = mux.NewRouter\n")
	write("notes.txt", "import \"net/http\"")

	viols, err := directImportViolations(dir, TransportImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "net/http (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")

	write("broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, TransportImport); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), TransportImport); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestTransitiveViolationsWalksGraph(t *testing.T) {
	orig := loadPackages
	t.Cleanup(func() { loadPackages = orig })

	leaf := &packages.Package{PkgPath: "github.com/google/uuid"}
	mid := &packages.Package{PkgPath: "opsreport/internal/auth", Imports: map[string]*packages.Package{leaf.PkgPath: leaf}}
	root := &packages.Package{PkgPath: "opsreport/cmd/x", Imports: map[string]*packages.Package{
		mid.PkgPath:  mid,
		"fmt":        {PkgPath: "fmt"},
		leaf.PkgPath: leaf,
	}}
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }

	viols, err := transitiveViolations("opsreport/cmd/x", ThirdPartyImport)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(viols) != 1 || viols[0] != "github.com/google/uuid" {
		t.Fatalf("expected a single deduplicated violation, got %v", viols)
	}

	loadPackages = func(string) ([]*packages.Package, error) { return nil, errors.New("boom") }
	if _, err := transitiveViolations("x", ThirdPartyImport); err == nil {
		t.Fatalf("expected load error")
	}

	loadPackages = func(string) ([]*packages.Package, error) {
		return []*packages.Package{{PkgPath: "bad", Errors: []packages.Error{{Msg: "no Go files"}}}}, nil
	}
	if _, err := transitiveViolations("bad", ThirdPartyImport); err == nil {
		t.Fatalf("expected package error")
	}
}
