package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/docsig/signature-service/api/signhandler"
)

var flagServerAddr *cli.StringFlag = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Signature server address to request",
}

var flagOutput *cli.StringFlag = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "File to write the response body to",
}

func main() {
	app := &cli.App{
		Name:  "signclient",
		Usage: "Command line client for the document signature API",
		Flags: []cli.Flag{flagServerAddr},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Print service status and version",
				Action: func(cCtx *cli.Context) error {
					status, err := client(cCtx).Status()
					if err != nil {
						return err
					}
					fmt.Printf("%s (version %s): %s\n", status.Status, status.Version, status.Message)
					return nil
				},
			},
			{
				Name:  "generate-keys",
				Usage: "Generate a keypair and register it in the directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "department", Required: true},
					&cli.IntFlag{Name: "key-size", Value: 2048},
					flagOutput,
				},
				Action: func(cCtx *cli.Context) error {
					privateKey, keyID, err := client(cCtx).GenerateKeys(
						cCtx.String("name"), cCtx.String("department"), cCtx.Int("key-size"))
					if err != nil {
						return err
					}
					fmt.Printf("registered key id: %s\n", keyID)
					return writeOutput(cCtx, privateKey)
				},
			},
			{
				Name:  "directory",
				Usage: "List registered signers",
				Action: func(cCtx *cli.Context) error {
					dir, err := client(cCtx).Directory()
					if err != nil {
						return err
					}
					for _, e := range dir.Entries {
						fmt.Printf("%s  %-20s %-15s %s\n", e.ID, e.Name, e.Department, e.CreatedAt.Format("2006-01-02 15:04:05"))
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a signer from the directory",
				ArgsUsage: "<key-id>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return fmt.Errorf("expected exactly one key id argument")
					}
					return client(cCtx).DeleteKey(cCtx.Args().First())
				},
			},
			{
				Name:      "sign",
				Usage:     "Produce a detached signature over a file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "private-key", Required: true, Usage: "Path to the private key PEM"},
					flagOutput,
				},
				Action: func(cCtx *cli.Context) error {
					data, err := readArgFile(cCtx)
					if err != nil {
						return err
					}
					privateKey, err := os.ReadFile(cCtx.String("private-key"))
					if err != nil {
						return err
					}
					signature, err := client(cCtx).Sign(data, privateKey)
					if err != nil {
						return err
					}
					return writeOutput(cCtx, signature)
				},
			},
			{
				Name:      "verify",
				Usage:     "Verify a detached signature",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "signature", Required: true, Usage: "Path to the signature file"},
					&cli.StringFlag{Name: "key-id", Usage: "Directory key id to verify against"},
					&cli.StringFlag{Name: "public-key", Usage: "Path to a public key PEM to verify against"},
				},
				Action: func(cCtx *cli.Context) error {
					data, err := readArgFile(cCtx)
					if err != nil {
						return err
					}
					signature, err := os.ReadFile(cCtx.String("signature"))
					if err != nil {
						return err
					}

					c := client(cCtx)
					var result = struct {
						Valid   bool
						Message string
						Signer  string
					}{}
					if keyID := cCtx.String("key-id"); keyID != "" {
						resp, err := c.VerifyWithKeyID(data, signature, keyID)
						if err != nil {
							return err
						}
						result.Valid, result.Message, result.Signer = resp.Valid, resp.Message, resp.Signer
					} else if keyPath := cCtx.String("public-key"); keyPath != "" {
						publicKey, err := os.ReadFile(keyPath)
						if err != nil {
							return err
						}
						resp, err := c.VerifyWithPublicKey(data, signature, publicKey)
						if err != nil {
							return err
						}
						result.Valid, result.Message, result.Signer = resp.Valid, resp.Message, resp.Signer
					} else {
						return fmt.Errorf("either --key-id or --public-key is required")
					}

					fmt.Printf("valid: %v\nsigner: %s\n%s\n", result.Valid, result.Signer, result.Message)
					if !result.Valid {
						os.Exit(1)
					}
					return nil
				},
			},
			{
				Name:  "generate-certificate",
				Usage: "Issue a self-signed certificate in a password-protected container",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "organization"},
					&cli.StringFlag{Name: "password", Required: true},
					flagOutput,
				},
				Action: func(cCtx *cli.Context) error {
					container, err := client(cCtx).GenerateCertificate(
						cCtx.String("name"), cCtx.String("organization"), cCtx.String("password"))
					if err != nil {
						return err
					}
					return writeOutput(cCtx, container)
				},
			},
			{
				Name:      "sign-pdf",
				Usage:     "Embed a signature into a PDF document",
				ArgsUsage: "<pdf-file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "certificate", Required: true, Usage: "Path to the credential container"},
					&cli.StringFlag{Name: "password", Required: true},
					flagOutput,
				},
				Action: func(cCtx *cli.Context) error {
					pdfData, err := readArgFile(cCtx)
					if err != nil {
						return err
					}
					container, err := os.ReadFile(cCtx.String("certificate"))
					if err != nil {
						return err
					}
					signed, signer, err := client(cCtx).SignPDF(pdfData, container, cCtx.String("password"))
					if err != nil {
						return err
					}
					fmt.Printf("signed by: %s\n", signer)
					return writeOutput(cCtx, signed)
				},
			},
			{
				Name:      "verify-pdf",
				Usage:     "Verify all signatures embedded in a PDF document",
				ArgsUsage: "<pdf-file>",
				Action: func(cCtx *cli.Context) error {
					pdfData, err := readArgFile(cCtx)
					if err != nil {
						return err
					}
					report, err := client(cCtx).VerifyPDF(pdfData)
					if err != nil {
						return err
					}
					fmt.Println(report.Message)
					for i, rec := range report.Signatures {
						fmt.Printf("%d. %s", i+1, rec.Signer)
						if rec.Organization != "" {
							fmt.Printf(" (%s)", rec.Organization)
						}
						fmt.Printf(": valid=%v (%s)\n", rec.Valid, rec.Detail)
					}
					if !report.AllValid {
						os.Exit(1)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func client(cCtx *cli.Context) *signhandler.Client {
	return signhandler.NewClient(cCtx.String(flagServerAddr.Name))
}

func readArgFile(cCtx *cli.Context) ([]byte, error) {
	if cCtx.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one file argument")
	}
	return os.ReadFile(cCtx.Args().First())
}

func writeOutput(cCtx *cli.Context, data []byte) error {
	path := cCtx.String(flagOutput.Name)
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
