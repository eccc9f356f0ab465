// Command murmur-keygen creates an identity keypair for a client. The
// private key is sealed under a passphrase and written to a file; the public
// key is printed in the form the relay's registration endpoint accepts.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pliu/murmur/internal/codec"
	"github.com/pliu/murmur/internal/keyring"
)

type keygenConfig struct {
	out        string
	passEnv    string
	workFactor int
	show       bool
}

func main() {
	cfg := parseConfig()
	if err := run(cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("murmur-keygen: %v", err)
	}
}

func parseConfig() keygenConfig {
	var cfg keygenConfig
	flag.StringVar(&cfg.out, "out", "identity.age", "Path of the sealed private key file")
	flag.StringVar(&cfg.passEnv, "passphrase-env", "MURMUR_KEY_PASSPHRASE", "Environment variable holding the passphrase; read from stdin when unset")
	flag.IntVar(&cfg.workFactor, "work-factor", keyring.DefaultWorkFactor, "log2 scrypt cost for sealing")
	flag.BoolVar(&cfg.show, "show", false, "Open an existing key file and print its public key instead of generating")
	flag.Parse()
	return cfg
}

func run(cfg keygenConfig, stdin io.Reader, stdout io.Writer) error {
	passphrase, err := readPassphrase(cfg.passEnv, stdin)
	if err != nil {
		return err
	}
	sealer := keyring.Sealer{WorkFactor: cfg.workFactor}

	if cfg.show {
		priv, err := sealer.LoadFile(cfg.out, passphrase)
		if err != nil {
			return err
		}
		pub, err := codec.EncodePublicKey(&priv.PublicKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, pub)
		return nil
	}

	if _, err := os.Stat(cfg.out); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite", cfg.out)
	}
	priv, err := codec.GenerateIdentityKey()
	if err != nil {
		return err
	}
	if err := sealer.SaveFile(cfg.out, priv, passphrase); err != nil {
		return err
	}
	pub, err := codec.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, pub)
	return nil
}

func readPassphrase(envName string, stdin io.Reader) (string, error) {
	if envName != "" {
		if v := os.Getenv(envName); v != "" {
			return v, nil
		}
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty passphrase")
	}
	return line, nil
}
