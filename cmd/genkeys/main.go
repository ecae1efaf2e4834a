package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

func main() {
	count := flag.Int("n", 1, "number of key pairs to generate")
	flag.Parse()

	for i := 0; i < *count; i++ {
		signer, err := crypto.GenerateKey()
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		fmt.Printf("address=%s private_key=%s\n", signer.Address().Hex(), signer.PrivateKeyHex())
	}
}
