package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"careerkit-go/internal/repository"
	"careerkit-go/pkg/log"
	"careerkit-go/pkg/token"

	"golang.org/x/crypto/bcrypt"
)

// challengeTTL 是登录后等待两步验证的最长时间。
const challengeTTL = 15 * time.Minute

var (
	ErrMissingCredentials = errors.New("Please enter both email and password.")
	ErrUnknownChallenge   = errors.New("Login again to continue.")
	ErrNoCode             = errors.New("Generate a code first.")
	ErrIncorrectCode      = errors.New("Incorrect code.")
)

// AuthService 是原型中的模拟登录与两步验证流程。
// 它不是安全边界：验证码会直接展示给需要输入它的同一个用户。
type AuthService interface {
	Login(ctx context.Context, email, password string) (challengeID string, err error)
	SendCode(ctx context.Context, challengeID string) (code string, err error)
	Verify(ctx context.Context, challengeID, code string) (sessionToken string, err error)
}

type authService struct {
	repo       repository.AuthRepository
	jwtManager *token.JWTManager
	codeTTL    time.Duration
}

// NewAuthService 创建一个新的 AuthService 实例。
func NewAuthService(repo repository.AuthRepository, jwtManager *token.JWTManager, codeTTL time.Duration) AuthService {
	return &authService{repo: repo, jwtManager: jwtManager, codeTTL: codeTTL}
}

// Login 只检查邮箱和密码是否非空，返回一个待验证的挑战 ID。
func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return "", ErrMissingCredentials
	}
	challengeID := token.GenerateRandomString(16)
	if err := s.repo.SaveChallenge(ctx, challengeID, email, challengeTTL); err != nil {
		return "", err
	}
	log.Infof("[AuthService] 用户 '%s' 进入两步验证", email)
	return challengeID, nil
}

// SendCode 生成一个 6 位验证码，以 bcrypt 哈希保存，并返回明文用于演示展示。
// 重复调用会使之前的验证码失效。
func (s *authService) SendCode(ctx context.Context, challengeID string) (string, error) {
	if _, ok, err := s.repo.GetChallengeEmail(ctx, challengeID); err != nil {
		return "", err
	} else if !ok {
		return "", ErrUnknownChallenge
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash code: %w", err)
	}
	if err := s.repo.SaveCodeHash(ctx, challengeID, string(hash), s.codeTTL); err != nil {
		return "", err
	}
	return code, nil
}

// Verify 比对验证码，成功后删除挑战并签发会话 token。
func (s *authService) Verify(ctx context.Context, challengeID, code string) (string, error) {
	email, ok, err := s.repo.GetChallengeEmail(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnknownChallenge
	}
	hash, ok, err := s.repo.GetCodeHash(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoCode
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(code))) != nil {
		return "", ErrIncorrectCode
	}

	if err := s.repo.DeleteChallenge(ctx, challengeID); err != nil {
		log.Warnf("[AuthService] 删除挑战失败: %v", err)
	}
	log.Infof("[AuthService] 用户 '%s' 验证通过", email)
	return s.jwtManager.GenerateToken(email)
}

// generateCode 返回 [100000, 999999] 范围内的随机数字串。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
