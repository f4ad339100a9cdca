// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nodewatch/lib/credential"
	"github.com/bureau-foundation/nodewatch/lib/sealed"
)

func (a *app) keygenCommand() *command {
	var identityFile string
	return &command{
		name:    "keygen",
		summary: "Generate the age identity the daemon opens sealed credentials with",
		usage:   "nodewatch-ctl keygen --identity-file PATH",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&identityFile, "identity-file", "", "where to write the private identity (required, mode 0600)")
			return flagSet
		},
		run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("keygen takes no arguments")
			}
			if identityFile == "" {
				return fmt.Errorf("--identity-file is required")
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			file, err := os.OpenFile(identityFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return fmt.Errorf("creating identity file: %w", err)
			}
			if _, err := file.Write(keypair.PrivateKey.Bytes()); err != nil {
				file.Close()
				return fmt.Errorf("writing identity file: %w", err)
			}
			if _, err := file.WriteString("\n"); err != nil {
				file.Close()
				return fmt.Errorf("writing identity file: %w", err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("writing identity file: %w", err)
			}
			fmt.Fprintln(a.stdout, keypair.PublicKey)
			return nil
		},
	}
}

func (a *app) sealCommand() *command {
	var (
		recipients []string
		envFile    string
		output     string
	)
	return &command{
		name:    "seal",
		summary: "Encrypt bot tokens into a sealed credentials file",
		usage:   "nodewatch-ctl seal --recipient age1... [--env-file FILE] [NAME=VALUE ...] [--output PATH]",
		examples: []example{
			{
				description: "Seal the tokens from a dotenv file",
				command:     "nodewatch-ctl seal --recipient age1... --env-file secrets.env --output /etc/nodewatch/credentials.age",
			},
		},
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flagSet.StringSliceVar(&recipients, "recipient", nil, "age public key to encrypt to (repeatable)")
			flagSet.StringVar(&envFile, "env-file", "", "dotenv file of NAME=VALUE credentials")
			flagSet.StringVarP(&output, "output", "o", "", "write the ciphertext here instead of stdout")
			return flagSet
		},
		run: func(args []string) error {
			credentials := make(map[string]string)
			if envFile != "" {
				values, err := godotenv.Read(envFile)
				if err != nil {
					return fmt.Errorf("reading %s: %w", envFile, err)
				}
				for name, value := range values {
					credentials[name] = value
				}
			}
			for _, arg := range args {
				name, value, ok := strings.Cut(arg, "=")
				if !ok || name == "" {
					return fmt.Errorf("credential %q is not NAME=VALUE", arg)
				}
				credentials[name] = value
			}
			for name := range credentials {
				if !isKnownCredential(name) {
					fmt.Fprintf(a.stderr, "warning: %s is not read by nodewatch\n", name)
				}
			}

			result, err := credential.Seal(credentials, recipients)
			if err != nil {
				return err
			}
			if output == "" {
				fmt.Fprintln(a.stdout, result.Ciphertext)
				return nil
			}
			if err := os.WriteFile(output, []byte(result.Ciphertext+"\n"), 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(a.stdout, "sealed %s to %s\n", strings.Join(result.Keys, ", "), output)
			return nil
		},
	}
}

func isKnownCredential(name string) bool {
	for _, known := range credential.KnownNames {
		if name == known {
			return true
		}
	}
	return false
}
