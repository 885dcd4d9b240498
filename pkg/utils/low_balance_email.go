package utils

import "fmt"

func SendLowBalanceEmail(to, memberName, activityName, balance, threshold string) error {
	subject := fmt.Sprintf("⚠️ Your %s balance is running low", activityName)

	body := fmt.Sprintf(`
	<!DOCTYPE html>
	<html lang="en">
	<head>
	<meta charset="UTF-8">
	<title>Low Balance Alert</title>
	<style>
		body { font-family: 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f6f8f7; color: #333; }
		.container { max-width: 480px; margin: 25px auto; background: #ffffff; border-radius: 12px;
			box-shadow: 0 4px 16px rgba(0, 0, 0, 0.08); border-top: 5px solid #f0ad4e; }
		.header { background-color: #f0ad4e; color: #ffffff; text-align: center; padding: 18px 12px; }
		.content { padding: 20px 18px; font-size: 14px; line-height: 1.6; }
		.amount-box { background: #fdf7ef; border: 1px solid #f1d8b0; border-radius: 8px;
			padding: 12px 14px; margin: 16px 0; text-align: center; }
		.amount-box h3 { margin: 0; color: #f0ad4e; font-size: 16px; }
		.footer { background: #f6f6f6; text-align: center; padding: 14px; font-size: 12px; color: #777; }
	</style>
	</head>
	<body>
		<div class="container">
			<div class="header"><h1>Low Balance Alert</h1></div>
			<div class="content">
				<p>Hi %s,<br><br>
				Your balance in <b>%s</b> has dropped to <b>$%s</b>, below the
				activity's alert threshold of $%s. Please top up before the next
				session so your charges keep clearing.</p>
				<div class="amount-box"><h3>$%s remaining</h3></div>
			</div>
			<div class="footer">Sent by kittybook — your shared activity ledger.</div>
		</div>
	</body>
	</html>`, memberName, activityName, balance, threshold, balance)

	return SendEmail(to, subject, body)
}
