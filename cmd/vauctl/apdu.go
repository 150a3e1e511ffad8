package main

import (
	"github.com/spf13/cobra"

	"code.vaulink.org/golang/internal/utils"
	"code.vaulink.org/golang/pkg/securemsg"
)

type apduOptions struct {
	kEnc    utils.HexBinary
	kMac    utils.HexBinary
	counter uint64
}

func (self *apduOptions) codec() (*securemsg.Codec, *securemsg.KeySet, error) {
	// NewKeySet wipes its arguments
	keys, err := securemsg.NewKeySet(append([]byte{}, self.kEnc...), append([]byte{}, self.kMac...))
	if nil != err {
		return nil, nil, err
	}
	return securemsg.NewCodecAt(self.counter), keys, nil
}

func newAPDUCmd() *cobra.Command {
	opts := &apduOptions{}
	cmd := &cobra.Command{
		Use:   "apdu",
		Short: "Secure messaging APDU debugging",
	}
	cmd.PersistentFlags().Var(&opts.kEnc, "kenc", "Encryption key (hex)")
	cmd.PersistentFlags().Var(&opts.kMac, "kmac", "MAC key (hex)")
	cmd.PersistentFlags().Uint64Var(&opts.counter, "ssc", 0, "Send sequence counter before the operation")
	cmd.MarkPersistentFlagRequired("kenc")
	cmd.MarkPersistentFlagRequired("kmac")

	wrap := &cobra.Command{
		Use:   "wrap COMMAND_HEX",
		Short: "Protect a plain command APDU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw utils.HexBinary
			err := raw.Set(args[0])
			if nil != err {
				return wrapError(err, "invalid command hex")
			}
			plain, err := securemsg.ParseCommandAPDU(raw)
			if nil != err {
				return err
			}
			codec, keys, err := opts.codec()
			if nil != err {
				return err
			}
			defer keys.Destroy()

			protected, err := codec.EncryptCommand(plain, keys)
			if nil != err {
				return err
			}
			printCommand(cmd.OutOrStdout(), protected)
			return nil
		},
	}

	unwrap := &cobra.Command{
		Use:   "unwrap RESPONSE_HEX",
		Short: "Verify & decrypt a protected response APDU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw utils.HexBinary
			err := raw.Set(args[0])
			if nil != err {
				return wrapError(err, "invalid response hex")
			}
			protected, err := securemsg.ParseResponseAPDU(raw)
			if nil != err {
				return err
			}
			codec, keys, err := opts.codec()
			if nil != err {
				return err
			}
			defer keys.Destroy()

			plain, err := codec.DecryptResponse(protected, keys)
			if nil != err {
				errorColor.Fprintf(cmd.OutOrStdout(), "unwrap failed: %v\n", err)
				return err
			}
			printResponse(cmd.OutOrStdout(), plain)
			return nil
		},
	}
	cmd.AddCommand(wrap, unwrap)

	return cmd
}
