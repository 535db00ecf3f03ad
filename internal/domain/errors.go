package domain

import "errors"

var (
	// ErrContractNotFound は指定されたテナント・IDの契約が存在しない場合のエラー。
	ErrContractNotFound = errors.New("contract not found")

	// ErrContractAlreadyRenewed は既に更新済みの契約を再度更新しようとした場合のエラー。
	ErrContractAlreadyRenewed = errors.New("contract has already been renewed")

	// ErrInvalidKey は暗号化キーが未設定・hex不正・32バイト以外の場合のエラー。
	// このエラーが出た場合、金額フィールドを扱う機能は起動できない。
	ErrInvalidKey = errors.New("invalid encryption key")

	// ErrDecryptFailed は復号失敗（形式不正・認証タグ不一致・キー不一致）のエラー。
	// 復号失敗を0やnullに黙って置き換えてはならない。
	ErrDecryptFailed = errors.New("decrypt failed")

	// ErrInvalidTenantID はテナントIDの形式が不正な場合のエラー。
	ErrInvalidTenantID = errors.New("invalid tenant ID")

	// ErrInvalidContractID は契約IDの形式が不正な場合のエラー。
	ErrInvalidContractID = errors.New("invalid contract ID")

	// ErrInvalidContractType は契約種別が不正な場合のエラー。
	ErrInvalidContractType = errors.New("invalid contract type")

	// ErrInvalidStatus は契約ステータスが不正な場合のエラー。
	ErrInvalidStatus = errors.New("invalid contract status")

	// ErrInvalidCommissionType はパートナーコミッション方式が不正な場合のエラー。
	ErrInvalidCommissionType = errors.New("invalid commission type")

	// ErrNegativeAmount は負の金額・単価・コミッションが入力された場合のエラー。
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
