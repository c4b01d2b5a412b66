// Command coursevault-creds manages the encrypted provider
// credentials file used by download runs.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/coursevault/coursevault/pkg/credstore"
)

func main() {
	file := flag.String("file", "credentials.enc", "Path to the credentials file")
	set := flag.String("set", "", "Provider to store credentials for")
	del := flag.String("delete", "", "Provider to remove")
	list := flag.Bool("list", false, "List stored providers")
	cookies := flag.String("cookies", "", "Cookie header value for -set")
	token := flag.String("token", "", "Bearer token for -set")
	referer := flag.String("referer", "", "Referer header value for -set")
	flag.Parse()

	password := os.Getenv("COURSEVAULT_CREDENTIALS_KEY")
	if password == "" {
		fmt.Fprintln(os.Stderr, "COURSEVAULT_CREDENTIALS_KEY must be set")
		os.Exit(2)
	}

	if err := run(*file, password, *set, *del, *list, *cookies, *token, *referer); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(path, password, set, del string, list bool, cookies, token, referer string) error {
	f, err := credstore.Load(path, password)
	if err != nil {
		return err
	}

	switch {
	case set != "":
		f.Set(set, credstore.Credentials{
			Cookies:   cookies,
			AuthToken: token,
			Referer:   referer,
		})
		if err := credstore.Save(path, password, f); err != nil {
			return err
		}
		fmt.Printf("stored credentials for %s\n", set)

	case del != "":
		f.Delete(del)
		if err := credstore.Save(path, password, f); err != nil {
			return err
		}
		fmt.Printf("removed credentials for %s\n", del)

	case list:
		providers := make([]string, 0, len(f.Providers))
		for name := range f.Providers {
			providers = append(providers, name)
		}
		sort.Strings(providers)
		for _, name := range providers {
			fmt.Println(name)
		}

	default:
		return fmt.Errorf("one of -set, -delete or -list is required")
	}
	return nil
}
