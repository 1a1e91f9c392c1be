package main

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/docopt/docopt-go"

	"glen/internal/invite"
	"glen/internal/models"
	"glen/internal/profile"
	"glen/internal/utils"
)

const InviteCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Glen invite control.

Creates, inspects and verifies community invite tokens. Tokens are
self-contained: verify needs only the encoded token itself.

Usage:
    invitectl create --username=<username> --password=<password>
        --community=<name>
        --group=<group_ref>
        [--role=<role>]
        [--ttl=<ttl>]
        [--profile=<path>]
    invitectl inspect <token>
    invitectl verify <token>

Options:
    -h --help              Show this screen.
    --version              Show version.
    --username=<username>  Profile username.
    --password=<password>  Profile password.
    --community=<name>     Community name the invite admits to.
    --group=<group_ref>    Group reference of the community.
    --role=<role>          Granted role: member or moderator [default: member].
    --ttl=<ttl>            Validity window, Go duration [default: 168h].
    --profile=<path>       Profile file path (defaults to ~/.glen).`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], InviteCtlVersion)
	if err != nil {
		panic(err)
	}

	if create_, _ := opts.Bool("create"); create_ {
		create(opts)
	} else if inspect_, _ := opts.Bool("inspect"); inspect_ {
		inspect(opts)
	} else if verify_, _ := opts.Bool("verify"); verify_ {
		verify(opts)
	}
}

func create(opts docopt.Opts) {
	username, _ := opts.String("--username")
	password, _ := opts.String("--password")
	community, _ := opts.String("--community")
	groupRef, _ := opts.String("--group")
	roleStr, _ := opts.String("--role")
	ttlStr, _ := opts.String("--ttl")
	path, _ := opts.String("--profile")

	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		Err.Fatalf("bad ttl %q: %v", ttlStr, err)
	}

	kb, err := profile.LoadProfile(username, password, path)
	if err != nil {
		Err.Fatalf("load profile: %v", err)
	}

	tok, err := invite.CreateInvite(kb.SignPriv, community, groupRef, kb.Identity, models.Role(roleStr), ttl)
	if err != nil {
		Err.Fatalf("create invite: %v", err)
	}
	encoded, err := invite.EncodeInvite(tok)
	if err != nil {
		Err.Fatalf("encode invite: %v", err)
	}
	Out.Println(encoded)
}

func inspect(opts docopt.Opts) {
	encoded, _ := opts.String("<token>")
	tok, err := invite.DecodeInvite(encoded)
	if err != nil {
		Err.Fatalf("decode: %v", err)
	}
	pretty, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		Err.Fatalf("marshal: %v", err)
	}
	Out.Println(string(pretty))
	if err := invite.Validate(tok); err != nil {
		Out.Printf("status: INVALID (%v)", err)
	} else {
		Out.Printf("status: valid until %s", utils.FormatPrettyTime(tok.Expiry))
	}
}

func verify(opts docopt.Opts) {
	encoded, _ := opts.String("<token>")
	tok, err := invite.DecodeInvite(encoded)
	if err != nil {
		Out.Println("invalid")
		os.Exit(1)
	}
	if !invite.VerifyInvite(tok) {
		Out.Println("invalid")
		os.Exit(1)
	}
	Out.Println("valid")
}
