package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bunstack/internal/catalog"
)

func newMenuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "List the part catalog with current builder usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			cat, err := a.api.Ingredients(cmd.Context())
			if err != nil {
				return err
			}

			for _, t := range []catalog.PartType{catalog.TypeBase, catalog.TypeSauce, catalog.TypeFilling} {
				fmt.Println(headerStyle.Render(strings.ToUpper(string(t))))
				for _, p := range cat.Parts() {
					if p.Type != t {
						continue
					}
					usage := ""
					if n := a.builder.UsageCount(p.ID); n > 0 {
						usage = usageStyle.Render(fmt.Sprintf(" x%d", n))
					}
					fmt.Printf("  %-26s %6d  %s%s\n", p.Name, p.Price, dimStyle.Render(p.ID), usage)
				}
			}
			return nil
		},
	}
}

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compose the item: base, fillings, ordering",
	}
	cmd.AddCommand(
		newBuildBaseCmd(),
		newBuildAddCmd(),
		newBuildRemoveCmd(),
		newBuildMoveCmd(),
		newBuildShowCmd(),
		newBuildClearCmd(),
	)
	return cmd
}

func newBuildBaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "base <part>",
		Short: "Set the base part (counts twice: top and bottom)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			part, err := a.findPart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !part.IsBase() {
				return fmt.Errorf("%s is a %s, not a base part", part.Name, part.Type)
			}
			a.builder.SetBase(part)
			return a.printBuilder()
		},
	}
}

func newBuildAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <part>",
		Short: "Append a filling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			part, err := a.findPart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if part.IsBase() {
				return fmt.Errorf("%s is a base part, use: bunstack build base", part.Name)
			}
			a.builder.AddFilling(part)
			return a.printBuilder()
		},
	}
}

func newBuildRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove the filling at the given position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			if err := a.builder.RemoveFilling(index); err != nil {
				return err
			}
			return a.printBuilder()
		},
	}
}

func newBuildMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Reorder a filling (never affects usage counts)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			if err := a.builder.MoveFilling(from, to); err != nil {
				return err
			}
			return a.printBuilder()
		},
	}
}

func newBuildShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the composed item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.printBuilder()
		},
	}
}

func newBuildClearCmd() *cobra.Command {
	var wipe bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the builder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.builder.Clear(wipe)
			fmt.Println("Builder cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&wipe, "wipe", false, "also erase the persisted snapshot")
	return cmd
}

// findPart resolves a part by catalog id or case-insensitive name.
func (a *app) findPart(ctx context.Context, key string) (catalog.Part, error) {
	cat, err := a.api.Ingredients(ctx)
	if err != nil {
		return catalog.Part{}, err
	}
	if p, ok := cat.Lookup(key); ok {
		return p, nil
	}
	for _, p := range cat.Parts() {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return catalog.Part{}, fmt.Errorf("no catalog part matches %q", key)
}

func (a *app) printBuilder() error {
	base := a.builder.Base()
	if base == nil {
		fmt.Println(dimStyle.Render("(no base)"))
	} else {
		fmt.Printf("%s %s (%d x2)\n", headerStyle.Render("base:"), base.Name, base.Price)
	}
	for i, f := range a.builder.Fillings() {
		fmt.Printf("  %2d. %-26s %6d  %s\n", i, f.Part.Name, f.Part.Price, dimStyle.Render(f.InstanceID))
	}
	fmt.Printf("%s %d\n", headerStyle.Render("total:"), a.builder.Total())
	return nil
}
