package services

const passwordResetEmailHTML = `<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #1f2937; background-color: #f3f4f6; margin: 0; padding: 20px; }
.container { padding: 20px; max-width: 600px; margin: 20px auto; background-color: #ffffff; border: 1px solid #e5e7eb; border-radius: 8px; }
.header { font-size: 24px; font-weight: bold; color: #2563eb; margin-bottom: 15px; }
.content { padding: 30px; text-align: center; }
.button { display: inline-block; padding: 12px 24px; background-color: #2563eb; color: #ffffff; border-radius: 6px; text-decoration: none; font-weight: bold; margin: 20px 0; }
.token { font-family: monospace; font-size: 14px; color: #374151; background-color: #f1f3f5; padding: 8px 12px; border-radius: 5px; display: inline-block; }
.footer { margin-top: 20px; font-size: 12px; color: #6b7280; text-align: center; }
</style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Reset your password</h1>
    </div>
    <div class="content">
      <p>Someone asked to reset the password of your Recollector account. The link below is valid for %d minutes.</p>
      <a class="button" href="%s">Choose a new password</a>
      <p>Or paste this code into the reset form:</p>
      <div class="token">%s</div>
      <p>If you did not request this, you can safely ignore this email.</p>
    </div>
    <div class="footer">
      © %d Recollector. All rights reserved.
    </div>
  </div>
</body>
</html>`
