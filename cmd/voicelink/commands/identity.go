package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/settings"
)

func identityCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the client identity",
	}
	cmd.AddCommand(identityNewCmd(), identityShowCmd(g), identityImproveCmd(g))
	return cmd
}

func identityNewCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate an identity and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Generate(cmd.Context(), level)
			if err != nil {
				return err
			}
			return printIdentity(cmd.OutOrStdout(), id, true)
		},
	}
	cmd.Flags().IntVar(&level, "level", settings.DefaultSecurityLevel, "security level to mine")
	return cmd
}

func identityShowCmd(g *globals) *cobra.Command {
	var export bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the identity of the connection file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, err := loadIdentity(g)
			if err != nil {
				return err
			}
			return printIdentity(cmd.OutOrStdout(), id, export)
		},
	}
	cmd.Flags().BoolVar(&export, "export", false, "also print the private export string")
	return cmd
}

func identityImproveCmd(g *globals) *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "improve",
		Short: "Raise the security level of the saved identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, id, err := loadIdentity(g)
			if err != nil {
				return err
			}
			improved, err := id.Improve(cmd.Context(), level)
			if err != nil {
				return err
			}
			if conf.Identity, err = improved.Export(); err != nil {
				return err
			}
			conf.SecurityLevel = improved.SecurityLevel()
			if err := g.manager().Save(conf); err != nil {
				return err
			}
			return printIdentity(cmd.OutOrStdout(), improved, false)
		},
	}
	cmd.Flags().IntVar(&level, "level", settings.DefaultSecurityLevel, "target security level")
	return cmd
}

func loadIdentity(g *globals) (settings.Connection, *identity.Identity, error) {
	conf, err := g.manager().Configuration()
	if err != nil {
		return settings.Connection{}, nil, err
	}
	if conf.Identity == "" {
		return settings.Connection{}, nil, fmt.Errorf("connection file has no identity, run init or connect first")
	}
	id, err := identity.Import(conf.Identity)
	if err != nil {
		return settings.Connection{}, nil, fmt.Errorf("failed to import identity: %w", err)
	}
	return conf, id, nil
}

func printIdentity(w io.Writer, id *identity.Identity, export bool) error {
	fmt.Fprintf(w, "UID: %s\nSecurity level: %d\nKey offset: %d\n", id.UID(), id.SecurityLevel(), id.KeyOffset())
	if !export {
		return nil
	}
	s, err := id.Export()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Export: %s\n", s)
	return nil
}
