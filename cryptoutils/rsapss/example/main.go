package main

import (
	"fmt"
	"log"
	"signaturedemo/cryptoutils/rsapss"
)

func main() {
	rsaService := rsapss.NewService()
	// Generate a new key pair
	keyPair, err := rsaService.GenerateKeyPair(rsapss.DefaultPublicExponent, rsapss.DefaultModulusBits)
	if err != nil {
		log.Fatalf("Failed to generate key pair: %v", err)
	}

	// Sign a message
	message := []byte("This is a secure message")
	signature, err := rsaService.Sign(keyPair.PrivateKey, message)
	if err != nil {
		log.Fatalf("Failed to sign message: %v", err)
	}

	// Ship the signature and public key as text, then verify on the other side
	encoded := rsaService.EncodeSignatureBase64(signature)
	publicPEM, err := rsaService.MarshalPublicKeyPEM(keyPair.PublicKey)
	if err != nil {
		log.Fatalf("Failed to encode public key: %v", err)
	}

	received, err := rsaService.DecodeSignatureBase64(encoded)
	if err != nil {
		log.Fatalf("Failed to decode signature: %v", err)
	}
	publicKey, err := rsaService.ParsePublicKeyPEM(publicPEM)
	if err != nil {
		log.Fatalf("Failed to parse public key: %v", err)
	}

	result := rsaService.Verify(publicKey, message, received)
	fmt.Printf("Signature verified: %v\n", result.IsValid())

	result = rsaService.Verify(publicKey, []byte("This is a tampered message"), received)
	fmt.Printf("Tampered message verified: %v (%v)\n", result.IsValid(), result.Reason)
}
