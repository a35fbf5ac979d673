// Package main prints the stored hash of a plaintext API key. Only the hash is
// persisted, so operators use this to find which app owns a presented key:
//
//	hashkey "$KEY"             # then look up apiKeyHash in the app store
//	echo "$KEY" | hashkey -    # read the key from stdin
//	hashkey -new               # generate a fresh key and print both forms
//
// Keys generated with -new are for seeding a local store only; production keys
// are issued through POST /apikeys so they are registered with the gateway.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mickBoat00/email-service/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <api-key|-|-new>\n", os.Args[0])
		os.Exit(2)
	}

	key := os.Args[1]
	switch key {
	case "-new":
		generated, err := auth.GenerateKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("key:  %s\nhash: %s\n", generated, auth.HashKey(generated))
		return
	case "-":
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "failed to read key from stdin: %v\n", err)
			os.Exit(1)
		}
		key = line
	}

	key, err := auth.ExtractKey(strings.TrimSpace(key))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(auth.HashKey(key))
}
