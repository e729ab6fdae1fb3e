package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/repository"
)

func main() {
	dbPath := flag.String("db", "finance.db", "path to the bot database")
	days := flag.Int("days", 7, "click statistics window in days")
	flag.Parse()

	db, err := repository.NewSQLiteDB(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepository(db)
	defer repo.Close()

	chats, err := repo.GetAllChats()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("💬 ЧАТЫ")
	fmt.Println("=======")
	if len(chats) == 0 {
		fmt.Println("Нет зарегистрированных чатов")
	}
	for _, c := range chats {
		reminders := "выкл"
		if c.RemindersEnabled {
			reminders = "вкл"
		}
		fmt.Printf("%d @%s (%s)\n", c.ChatID, c.Username, c.FirstName)
		fmt.Printf("   Начало: %s | Активность: %s | Напоминания: %s\n",
			c.CreatedAt.Format("02.01.2006 15:04"), c.LastActive.Format("02.01.2006 15:04"), reminders)
	}

	clicks, err := repo.GetButtonClicksCount(time.Now().AddDate(0, 0, -*days))
	if err != nil {
		log.Fatal(err)
	}
	buttons := make([]string, 0, len(clicks))
	for b := range clicks {
		buttons = append(buttons, b)
	}
	sort.Slice(buttons, func(i, j int) bool { return clicks[buttons[i]] > clicks[buttons[j]] })

	fmt.Printf("\n📊 КНОПКИ ЗА %d ДН.\n", *days)
	fmt.Println("=================")
	for _, b := range buttons {
		fmt.Printf("%-10s %d\n", b, clicks[b])
	}
}
