package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-xattrfs/internal/inode"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
	"github.com/deploymenttheory/go-xattrfs/pkg/app/output"
)

var (
	getHex bool

	setCreate  bool
	setReplace bool

	lsHidden bool
	lsLong   bool
)

var getCmd = &cobra.Command{
	Use:   "get <ino> <name>",
	Short: "Print the value of an attribute",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInode(cmd, args[0])
		if err != nil {
			return err
		}
		svc, err := factory.XattrService()
		if err != nil {
			return err
		}

		size, err := svc.Get(cmd.Context(), in, args[1], nil)
		if err != nil {
			return err
		}
		buf := make([]byte, max(size, 1))
		n, err := svc.Get(cmd.Context(), in, args[1], buf)
		if err != nil {
			return err
		}

		if getHex {
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(buf[:n]))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), string(buf[:n]))
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <ino> <name> <value>",
	Short: "Create or replace an attribute",
	Example: `  xattrfs set 5 user.color blue
  xattrfs --admin set 5 scoutfs.totl.size.0.1 4096
  xattrfs --admin set 5 scoutfs.hide.worm.v1_expiration 1893456000.0`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInode(cmd, args[0])
		if err != nil {
			return err
		}
		svc, err := factory.XattrService()
		if err != nil {
			return err
		}

		var flags types.XattrSetFlags
		if setCreate {
			flags |= types.XattrCreate
		}
		if setReplace {
			flags |= types.XattrReplace
		}
		return svc.Set(cmd.Context(), in, args[1], []byte(args[2]), flags)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <ino> <name>",
	Short: "Remove an attribute",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInode(cmd, args[0])
		if err != nil {
			return err
		}
		svc, err := factory.XattrService()
		if err != nil {
			return err
		}
		return svc.Remove(cmd.Context(), in, args[1])
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <ino>",
	Short: "List the attributes of an inode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInode(cmd, args[0])
		if err != nil {
			return err
		}
		svc, err := factory.XattrService()
		if err != nil {
			return err
		}

		infos, err := svc.Stat(cmd.Context(), in, lsHidden)
		if err != nil {
			return err
		}

		if !lsLong {
			for _, info := range infos {
				fmt.Fprintln(cmd.OutOrStdout(), info.Name)
			}
			return nil
		}
		return output.Write(cmd.OutOrStdout(), outputFormat, newAttrRows(infos))
	},
}

func loadInode(cmd *cobra.Command, arg string) (*inode.Inode, error) {
	ino, err := parseIno(arg)
	if err != nil {
		return nil, err
	}
	inodes, err := factory.Inodes()
	if err != nil {
		return nil, err
	}
	return inodes.Get(cmd.Context(), ino)
}

func init() {
	rootCmd.AddCommand(getCmd, setCmd, rmCmd, lsCmd)

	getCmd.Flags().BoolVar(&getHex, "hex", false, "print the value as hex")

	setCmd.Flags().BoolVar(&setCreate, "create", false, "fail if the attribute exists")
	setCmd.Flags().BoolVar(&setReplace, "replace", false, "fail if the attribute does not exist")

	lsCmd.Flags().BoolVar(&lsHidden, "hidden", false, "list hidden attributes instead")
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show size, parts, key and tags")
}
