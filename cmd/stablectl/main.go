package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"dscengine/cmd/internal/passphrase"
	"dscengine/crypto"
	"dscengine/native/stablecoin"
)

const (
	keygenCommand  = "keygen"
	addressCommand = "address"
	tokenCommand   = "token"
	assetsCommand  = "assets"

	defaultPassEnv   = "STABLECTL_PASS"
	defaultSecretEnv = "STABLED_JWT_SECRET"
	defaultKeystore  = "operator.keystore"
	defaultScopes    = "stablecoin:write"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	case addressCommand:
		err = runAddress(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case assetsCommand:
		err = runAssets(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	light := fs.Bool("light-kdf", false, "Use the light scrypt cost (dev keys only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	strength := crypto.StandardKDF
	if *light {
		strength = crypto.LightKDF
	}
	addr, err := generateKeystore(*keystorePath, passphrase.NewSource(*passEnv, "operator keystore"), strength, *force)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Keystore written to %s\nAddress: %s\n", *keystorePath, addr)
	return nil
}

func generateKeystore(path string, pass *passphrase.Source, strength crypto.KDFStrength, force bool) (crypto.Address, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return crypto.Address{}, fmt.Errorf("keystore file %s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return crypto.Address{}, err
		}
	}
	secret, err := pass.Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return crypto.Address{}, fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystoreWithKDF(path, key, secret, strength); err != nil {
		return crypto.Address{}, fmt.Errorf("write keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Path to the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := keystoreAddress(*keystorePath, passphrase.NewSource(*passEnv, "operator keystore"))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr)
	return nil
}

func keystoreAddress(path string, pass *passphrase.Source) (crypto.Address, error) {
	secret, err := pass.Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, secret)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("load keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

type tokenOptions struct {
	Subject  string
	Scopes   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Secret   string
	Now      time.Time
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	opts := tokenOptions{}
	fs.StringVar(&opts.Subject, "sub", "", "Token subject; a dsc address for position-changing calls")
	fs.StringVar(&opts.Scopes, "scopes", defaultScopes, "Space or comma separated scopes to grant")
	fs.StringVar(&opts.Issuer, "issuer", "", "Issuer claim")
	fs.StringVar(&opts.Audience, "audience", "", "Audience claim")
	fs.DurationVar(&opts.TTL, "ttl", time.Hour, "Token lifetime")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the HMAC secret")
	keystorePath := fs.String("keystore", "", "Derive the subject from this keystore instead of --sub")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keystorePath != "" {
		addr, err := keystoreAddress(*keystorePath, passphrase.NewSource(*passEnv, "operator keystore"))
		if err != nil {
			return err
		}
		opts.Subject = addr.String()
	}
	opts.Secret = os.Getenv(*secretEnv)
	if strings.TrimSpace(opts.Secret) == "" {
		return fmt.Errorf("environment variable %s is not set", *secretEnv)
	}
	opts.Now = time.Now()
	signed, err := signToken(opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, signed)
	return nil
}

func signToken(opts tokenOptions) (string, error) {
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		return "", errors.New("token subject required (--sub or --keystore)")
	}
	if opts.TTL <= 0 {
		return "", errors.New("ttl must be positive")
	}
	scopes := strings.Fields(strings.ReplaceAll(opts.Scopes, ",", " "))
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": strings.Join(scopes, " "),
		"iat":   opts.Now.Unix(),
		"exp":   opts.Now.Add(opts.TTL).Unix(),
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(opts.Secret))
}

func runAssets(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(assetsCommand, flag.ContinueOnError)
	configPath := fs.String("config", "services/stabled/engine.toml", "Path to the engine TOML config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := stablecoin.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	return printAssets(cfg, out)
}

// printAssets lists each configured collateral with its resolved addresses.
func printAssets(cfg *stablecoin.Config, out io.Writer) error {
	params, err := cfg.RiskParameters()
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "threshold_bps=%d bonus_bps=%d min_health_factor=%s oracle_timeout=%s\n",
		params.LiquidationThresholdBps, params.LiquidationBonusBps, params.MinHealthFactor, params.OracleTimeout)
	for i, entry := range registry.Assets() {
		label := ""
		if i < len(cfg.Collateral) {
			label = cfg.Collateral[i].Label
		}
		fmt.Fprintf(out, "%s\tasset=%s\tfeed=%s\tdecimals=%d\n", label, entry.Asset, entry.Feed, entry.Decimals)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintf(os.Stderr, "  %s\tGenerate an operator key and write it to a keystore\n", keygenCommand)
	fmt.Fprintf(os.Stderr, "  %s\tPrint the dsc address held in a keystore\n", addressCommand)
	fmt.Fprintf(os.Stderr, "  %s\tSign an HS256 bearer token for stabled\n", tokenCommand)
	fmt.Fprintf(os.Stderr, "  %s\tList the collateral registry resolved from an engine config\n", assetsCommand)
}
