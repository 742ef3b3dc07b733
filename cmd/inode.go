package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var (
	mkinodeMode string
	mkinodeDir  bool
)

var mkinodeCmd = &cobra.Command{
	Use:   "mkinode <ino>",
	Short: "Create an inode to hold attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ino, err := parseIno(args[0])
		if err != nil {
			return err
		}
		perm, err := strconv.ParseUint(mkinodeMode, 8, 32)
		if err != nil {
			return fmt.Errorf("mode %q: %w", mkinodeMode, err)
		}

		mode := uint32(perm) | unix.S_IFREG
		if mkinodeDir {
			mode = uint32(perm) | unix.S_IFDIR
		}

		inodes, err := factory.Inodes()
		if err != nil {
			return err
		}
		_, err = inodes.Create(cmd.Context(), ino, mode)
		return err
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <ino>",
	Short: "Delete an inode and every attribute it holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ino, err := parseIno(args[0])
		if err != nil {
			return err
		}
		return factory.DropFile(cmd.Context(), ino)
	},
}

func init() {
	rootCmd.AddCommand(mkinodeCmd, dropCmd)

	mkinodeCmd.Flags().StringVar(&mkinodeMode, "mode", "644", "permission bits in octal")
	mkinodeCmd.Flags().BoolVar(&mkinodeDir, "dir", false, "create a directory inode")
}
