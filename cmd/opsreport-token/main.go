// Command opsreport-token issues a signed bearer token for a principal, for
// local development and operational scripts. The signing secret is read from
// OPSREPORT_JWT_SECRET.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"

	"opsreport/internal/auth"
	"opsreport/pkg/domain"
)

var exitFunc = os.Exit

type tokenEnv struct {
	Secret string `env:"JWT_SECRET,required,notEmpty"`
	Issuer string `env:"JWT_ISSUER" envDefault:"opsreport"`
}

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("opsreport-token", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.Int64("id", 0, "principal id")
	role := fs.String("role", "", "principal role (ADMIN, PLANNER, INPUTTER, VIEWER)")
	department := fs.Int64("department", 0, "department id; omitted when zero")
	departmentName := fs.String("department-name", "", "department display name")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	token, err := issue(*id, *role, *department, *departmentName, *ttl)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "issue token: %v\n", err)
		return 1
	}
	if _, err := fmt.Fprintln(stdout, token); err != nil {
		return 1
	}
	return 0
}

func issue(id int64, role string, department int64, departmentName string, ttl time.Duration) (string, error) {
	cfg, err := env.ParseAsWithOptions[tokenEnv](env.Options{Prefix: "OPSREPORT_"})
	if err != nil {
		return "", err
	}
	if id <= 0 {
		return "", errors.New("--id must be positive")
	}
	p := domain.Principal{
		ID:             id,
		Role:           domain.Role(strings.ToUpper(role)),
		DepartmentName: departmentName,
	}
	if department > 0 {
		p.DepartmentID = &department
	}
	authn, err := auth.NewAuthenticator(cfg.Secret, auth.WithIssuer(cfg.Issuer), auth.WithTTL(ttl))
	if err != nil {
		return "", err
	}
	return authn.IssueToken(p)
}
