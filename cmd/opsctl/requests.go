package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func confirmPhoneCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "confirm-phone <request-id>",
		Short: "Отметить телефонное подтверждение крупного пересмотра сметы",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("некорректный ID заявки: %w", err)
			}
			operatorID, err := uuid.Parse(operator)
			if err != nil {
				return fmt.Errorf("некорректный ID оператора: %w", err)
			}

			services, closeStore, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			q, err := services.Quotes.ConfirmPhone(cmd.Context(), operatorID, requestID)
			if err != nil {
				return err
			}
			fmt.Printf("смета %s подтверждена: %s - %s\n", q.ID, q.Current.Min, q.Current.Max)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "ID оператора")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func reanalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze <request-id>",
		Short: "Повторить оценку заявки, оставшейся в PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("некорректный ID заявки: %w", err)
			}

			services, closeStore, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			req, err := services.Requests.Reanalyze.Execute(cmd.Context(), requestID)
			if err != nil {
				return err
			}
			fmt.Printf("заявка %s: статус %s\n", req.ReferenceCode, req.Status)
			return nil
		},
	}
}

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <request-id>",
		Short: "Запустить рассылку по заявке, оставшейся в ANALYZED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("некорректный ID заявки: %w", err)
			}

			services, closeStore, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			round, err := services.Dispatcher.Start(cmd.Context(), requestID)
			if err != nil {
				return err
			}
			fmt.Printf("заявка %s: раунд %d, оповещено мастеров %d\n", requestID, round.Number, len(round.Offers))
			return nil
		},
	}
}

func verifyTechnicianCmd() *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "verify-technician <technician-id>",
		Short: "Верифицировать профиль мастера",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			technicianID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("некорректный ID мастера: %w", err)
			}
			adminID, err := uuid.Parse(admin)
			if err != nil {
				return fmt.Errorf("некорректный ID администратора: %w", err)
			}

			services, closeStore, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			tech, err := services.Technicians.Verify(cmd.Context(), adminID, technicianID)
			if err != nil {
				return err
			}
			fmt.Printf("мастер %s (%s) верифицирован\n", tech.Code, tech.DisplayName)
			return nil
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "ID администратора")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}
