package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Mohsinsiddi/auctionbridge/internal/signer"
	"github.com/Mohsinsiddi/auctionbridge/internal/ui"
	"github.com/spf13/cobra"
)

var (
	keyHexFlag string
	keyYes     bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the withdrawal signing key",
	Long: `Manage the secp256k1 key that signs withdrawal authorizations.

Keys are kept in the OS keychain (file backend as fallback). Setting
AUCTIONBRIDGE_SIGNING_KEY overrides the stored key.`,
}

var keyImportCmd = &cobra.Command{
	Use:   "import [name]",
	Short: "Store a signing key (reads stdin when --key is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := keyName(args)
		hexKey := keyHexFlag
		if hexKey == "" {
			fmt.Fprint(os.Stderr, "Private key (hex): ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading key: %w", err)
			}
			hexKey = strings.TrimSpace(line)
		}

		// Parse first so a malformed key never reaches the keychain.
		s, err := signer.FromHex(hexKey)
		if err != nil {
			return err
		}
		if _, err := keystore().Store(name, hexKey); err != nil {
			return fmt.Errorf("storing key: %w", err)
		}
		fmt.Println(ui.Success(fmt.Sprintf("Key %q stored. Signer address: %s", name, ui.Addr(s.Address().Hex()))))
		if name != cfg.SigningKey {
			fmt.Println(ui.Hint("The service signs with " + cfg.SigningKey + "; set signing_key in config.json to use this one."))
		}
		return nil
	},
}

var keyAddressCmd = &cobra.Command{
	Use:   "address [name]",
	Short: "Print the address the withdraw contract must trust",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := signer.Load(keystore(), signer.Ref(keyName(args)))
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]string{"address": s.Address().Hex()})
		}
		fmt.Println(ui.Addr(s.Address().Hex()))
		return nil
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a signing key from the keychain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := keyName(args)
		if !keyYes && !ui.ConfirmDanger(fmt.Sprintf("Delete signing key %q? Withdrawals stop until a key is imported again.", name)) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		if err := keystore().Delete(signer.Ref(name)); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Key %q deleted.", name)))
		return nil
	},
}

func keyName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.SigningKey
}

func init() {
	keyImportCmd.Flags().StringVar(&keyHexFlag, "key", "", "private key hex (avoid: ends up in shell history)")
	keyDeleteCmd.Flags().BoolVarP(&keyYes, "yes", "y", false, "skip the confirmation prompt")
	keyCmd.AddCommand(keyImportCmd, keyAddressCmd, keyDeleteCmd)
}
