package app

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewRootCommand_RegistersSubcommands(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	want := []Command{
		CommandServe, CommandWorker, CommandMigrate, CommandSeed,
		CommandHealthcheck, CommandPortalLink, CommandHashPassword,
	}
	for _, c := range want {
		sub, _, err := root.Find([]string{string(c)})
		if err != nil || sub == root {
			t.Errorf("subcommand %q not registered", c)
		}
	}
}

func TestNewRootCommand_DefaultRunsServe(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	if root.RunE == nil {
		t.Fatal("root command should run serve when no subcommand is given")
	}
}

func TestSeedCommand_RequiresFileFlag(t *testing.T) {
	setTestEnv(t)
	root := NewRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"seed"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "file") {
		t.Fatalf("expected missing --file error, got %v", err)
	}
}

func TestPortalLinkCommand_RequiresJobID(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"portal-link"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error without jobId argument")
	}
}

func TestHashPasswordCommand_PrintsBcryptHash(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"hash-password"})
	root.SetIn(strings.NewReader("correct-horse\n"))
	root.SetOut(&out)

	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct-horse")); err != nil {
		t.Errorf("output is not a bcrypt hash of the input: %v", err)
	}
}

func TestHashPassword_EmptyInput_ReturnsError(t *testing.T) {
	if err := hashPassword(strings.NewReader("\n"), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for empty password")
	}
}
