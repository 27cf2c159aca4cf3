package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/eringen/imagewarm"
	"github.com/eringen/imagewarm/optimizer"
	"github.com/eringen/imagewarm/transform"
)

func (c *cli) encodeCmd() *cobra.Command {
	var (
		width, height, quality int
		blur                   bool
	)
	cmd := &cobra.Command{
		Use:   "encode <src>",
		Short: "Print the canonical URL of an image variant",
		Example: `  imagewarm encode /img/hero.png --width 800 --height 600
  imagewarm encode /img/hero.png --blur`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				img optimizer.CachedImage
				err error
			)
			if blur {
				img, err = optimizer.NewBlur(args[0], optimizer.DefaultBlur)
			} else {
				img, err = optimizer.NewResize(args[0], width, height, quality)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), img.URL())
			return err
		},
	}
	cmd.Flags().IntVar(&width, "width", 1024, "target width")
	cmd.Flags().IntVar(&height, "height", 768, "target height")
	cmd.Flags().IntVar(&quality, "quality", optimizer.DefaultQuality, "JPEG quality")
	cmd.Flags().BoolVar(&blur, "blur", false, "encode the blur placeholder variant")
	return cmd
}

type decoded struct {
	Src     string            `json:"src"`
	Kind    optimizer.Kind    `json:"kind"`
	Variant optimizer.Variant `json:"variant"`
}

func (c *cli) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <url>",
		Short: "Decode a canonical image URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return err
			}
			img, err := optimizer.ParseURL(u)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decoded{Src: img.Src, Kind: img.Variant.Kind(), Variant: img.Variant})
		},
	}
}

func (c *cli) placeholderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "placeholder <src>",
		Short: "Generate the blur placeholder SVG of a source image",
		Long:  "Placeholder reads src from the --assets directory and prints the SVG that serve would cache for it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := optimizer.NewBlur(args[0], optimizer.DefaultBlur)
			if err != nil {
				return err
			}
			engine := transform.New(c.v.GetString("assets"), transform.WithLogger(c.logger()))
			svg, err := engine.Transform(cmd.Context(), img)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(svg, '\n'))
			return err
		},
	}
}

func (c *cli) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <src>...",
		Short: "Delete stored variants of source images",
		Long: `Purge removes every resized variant of each src from the variant store,
so the next request transforms the current file again. Placeholders live in
memory and are rebuilt by the next serve.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.v.GetString("database")
			if path == "" || path == "-" {
				return errors.New("purge needs a variant store, set --database")
			}
			store, err := imagewarm.NewStore(path)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, src := range args {
				n, err := store.DeleteSource(cmd.Context(), src)
				if err != nil {
					return fmt.Errorf("purge %s: %w", src, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d variants removed\n", src, n)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the imagewarm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "imagewarm %s\n", version)
		},
	}
}
