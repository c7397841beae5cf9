package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const SecretKeyBytesLen = 32

func main() {
	n := pflag.IntP("bytes", "n", SecretKeyBytesLen, "Secret key length in bytes")
	pflag.Parse()

	if *n <= 0 {
		fmt.Printf("secret key length must be positive, got %d\n", *n)
		os.Exit(1)
	}

	b := make([]byte, *n)

	_, err := rand.Read(b)
	if err != nil {
		fmt.Printf("error while generating secret key: %v", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
