package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"audiodev-manager/internal/usecase"
)

func newDevicesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "出力デバイス一覧を表示 (* がデフォルト)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine usecase.AudioManagerUseCase) error {
				names, err := engine.ListOutputDeviceNames()
				if err != nil {
					return err
				}
				def, _ := engine.DefaultDeviceName()

				if asJSON {
					out, _ := json.MarshalIndent(map[string]interface{}{
						"devices": names,
						"default": def,
					}, "", "  ")
					fmt.Fprintln(cmd.OutOrStdout(), string(out))
					return nil
				}
				for _, name := range names {
					marker := " "
					if name == def {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSONで出力")
	return cmd
}

func newDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "現在のデフォルト出力デバイス名を表示",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine usecase.AudioManagerUseCase) error {
				name, err := engine.DefaultDeviceName()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			})
		},
	}
}

func newSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch NAME",
		Short: "デフォルト出力デバイスを切替",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine usecase.AudioManagerUseCase) error {
				if err := engine.SwitchDefaultDevice(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "デフォルト出力: %s\n", args[0])
				return nil
			})
		},
	}
}

func newVolumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "出力音量の取得・設定",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get NAME",
			Short: "音量を表示 (0.0-1.0)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(func(engine usecase.AudioManagerUseCase) error {
					v, err := engine.Volume(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set NAME VALUE",
			Short: "音量を設定 (0.0-1.0 または 0%-100%)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseVolume(args[1])
				if err != nil {
					return err
				}
				return withEngine(func(engine usecase.AudioManagerUseCase) error {
					if err := engine.SetVolume(args[0], v); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: volume=%.3f\n", args[0], v)
					return nil
				})
			},
		},
	)
	return cmd
}

func newMuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mute",
		Short: "ミュート状態の取得・設定",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get NAME",
			Short: "ミュート状態を表示",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(func(engine usecase.AudioManagerUseCase) error {
					muted, err := engine.MuteState(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), muted)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set NAME true|false",
			Short: "ミュート状態を設定",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				muted, err := strconv.ParseBool(args[1])
				if err != nil {
					return fmt.Errorf("true/false を指定してください: %q", args[1])
				}
				return withEngine(func(engine usecase.AudioManagerUseCase) error {
					if err := engine.SetMuteState(args[0], muted); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: muted=%t\n", args[0], muted)
					return nil
				})
			},
		},
	)
	return cmd
}

func newCustomPropertyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custom-property",
		Short: "仮想デバイスのカスタムプロパティ操作",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set NAME VALUE",
		Short: "先頭のカスタムプロパティに値を書き込む",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine usecase.AudioManagerUseCase) error {
				if err := engine.SetVirtualDeviceCustomProperty(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: custom property = %q\n", args[0], args[1])
				return nil
			})
		},
	})
	return cmd
}
