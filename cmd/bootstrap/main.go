// Command bootstrap creates the first superadmin account directly against
// the database, for installs where the HTTP bootstrap route is not exposed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/obs"
	"biblioteca.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	obs.Init()

	var (
		dsn       = flag.String("dsn", os.Getenv("BIBLIO_PG_DSN"), "PostgreSQL DSN")
		document  = flag.String("document", "", "Document id of the superadmin's person record")
		nombre    = flag.String("nombre", "", "First given name")
		apellido  = flag.String("apellido", "", "First surname")
		email     = flag.String("email", "", "Account email")
		username  = flag.String("username", "", "Explicit username (optional; derived when empty)")
		password  = flag.String("password", "", "Explicit password (optional; generated when empty)")
		secretEnv = os.Getenv("BIBLIO_AUTH_SECRET")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or BIBLIO_PG_DSN")
	}
	if *document == "" || *nombre == "" || *apellido == "" || *email == "" {
		log.Fatal("usage: bootstrap -document ID -nombre N -apellido A -email E [-username U] [-password P]")
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	opts := []account.ServiceOption{}
	if secretEnv != "" {
		opts = append(opts, account.WithTokenSecret(secretEnv))
	}
	svc, err := account.NewService(store, opts...)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	person := &account.Person{
		DocumentID:  *document,
		Nombre1:     *nombre,
		Apellido1:   *apellido,
		Email:       *email,
		TipoPersona: account.PersonStaff,
	}
	res, err := svc.BootstrapSuperadmin(ctx, nil, person, *email, *username, *password)
	if err != nil {
		log.Fatalf("bootstrap superadmin: %v", err)
	}

	fmt.Printf("superadmin created\n")
	fmt.Printf("  account id: %s\n", res.Account.ID)
	fmt.Printf("  username:   %s\n", res.Credentials.Username)
	fmt.Printf("  password:   %s\n", res.Credentials.Password)
}
